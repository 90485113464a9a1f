package vdisk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dsoprea/go-logging"
)

// DescriptorEntryKind distinguishes bare values from values that emit
// wrapped in double-quotes.
type DescriptorEntryKind int

const (
	// EntryPlain emits as `key=value`.
	EntryPlain DescriptorEntryKind = iota

	// EntryQuoted emits as `key="value"`.
	EntryQuoted
)

// DescriptorEntry is one KEY=VALUE line of a descriptor-file section.
type DescriptorEntry struct {
	Key   string
	Value string
	Kind  DescriptorEntryKind
}

func (de DescriptorEntry) String() string {
	return fmt.Sprintf("DescriptorEntry<KEY=[%s] VALUE=[%s] QUOTED=[%v]>", de.Key, de.Value, de.Kind == EntryQuoted)
}

// Emit renders the entry as a single descriptor line (without newline).
func (de DescriptorEntry) Emit() string {
	if de.Kind == EntryQuoted {
		return fmt.Sprintf("%s=\"%s\"", de.Key, de.Value)
	}

	return fmt.Sprintf("%s=%s", de.Key, de.Value)
}

// ExtentAccess is the access token leading an extent-descriptor line.
type ExtentAccess int

const (
	ExtentAccessRw ExtentAccess = iota
	ExtentAccessRdonly
	ExtentAccessNoAccess
)

var (
	extentAccessNames = map[ExtentAccess]string{
		ExtentAccessRw:       "RW",
		ExtentAccessRdonly:   "RDONLY",
		ExtentAccessNoAccess: "NOACCESS",
	}

	extentAccessTokens = map[string]ExtentAccess{
		"RW":       ExtentAccessRw,
		"RDONLY":   ExtentAccessRdonly,
		"NOACCESS": ExtentAccessNoAccess,
	}
)

func (ea ExtentAccess) String() string {
	return extentAccessNames[ea]
}

// ExtentDescriptor is one extent line: access, size in sectors, type,
// filename, and (for flat extents) a starting offset.
type ExtentDescriptor struct {
	Access      ExtentAccess
	SizeSectors uint64
	ExtentType  string
	Filename    string
	Offset      uint64
}

func (ed ExtentDescriptor) String() string {
	return fmt.Sprintf("ExtentDescriptor<ACCESS=[%s] SECTORS=(%d) TYPE=[%s] FILENAME=[%s]>", ed.Access, ed.SizeSectors, ed.ExtentType, ed.Filename)
}

// Emit renders the extent as a single descriptor line (without newline).
func (ed ExtentDescriptor) Emit() string {
	line := fmt.Sprintf("%s %d %s \"%s\"", ed.Access, ed.SizeSectors, ed.ExtentType, ed.Filename)

	if ed.Offset != 0 || ed.ExtentType == "FLAT" {
		line = fmt.Sprintf("%s %d", line, ed.Offset)
	}

	return line
}

// parseExtentDescriptor parses the positional single-line extent grammar:
//
//	ACCESS SIZE TYPE "FILENAME" [OFFSET]
func parseExtentDescriptor(line string) (ed ExtentDescriptor, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	fields := splitDescriptorFields(line)
	if len(fields) < 4 {
		log.Panic(ErrMalformedLine)
	}

	access, found := extentAccessTokens[fields[0]]
	if found == false {
		log.Panic(ErrMalformedLine)
	}

	sizeSectors, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		log.Panic(ErrMalformedLine)
	}

	ed = ExtentDescriptor{
		Access:      access,
		SizeSectors: sizeSectors,
		ExtentType:  fields[2],
		Filename:    strings.Trim(fields[3], "\""),
	}

	if len(fields) >= 5 {
		offset, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			log.Panic(ErrMalformedLine)
		}

		ed.Offset = offset
	}

	return ed, nil
}

// splitDescriptorFields splits on spaces but keeps a quoted filename (which
// may embed spaces) as one field.
func splitDescriptorFields(line string) []string {
	fields := make([]string, 0, 5)

	inQuotes := false
	current := strings.Builder{}

	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			current.WriteRune(r)
		} else if r == ' ' && inQuotes == false {
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		} else {
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		fields = append(fields, current.String())
	}

	return fields
}

// DiskCreateType is the closed set of `createType` tokens.
type DiskCreateType int

const (
	CreateTypeNone DiskCreateType = iota
	CreateTypeMonolithicSparse
	CreateTypeVmfsSparse
	CreateTypeMonolithicFlat
	CreateTypeVmfs
	CreateTypeTwoGbMaxExtentSparse
	CreateTypeTwoGbMaxExtentFlat
	CreateTypeFullDevice
	CreateTypeVmfsRaw
	CreateTypePartitionedDevice
	CreateTypeVmfsRawDeviceMap
	CreateTypeVmfsPassthroughRawDeviceMap
	CreateTypeStreamOptimized
)

var (
	createTypeNames = map[DiskCreateType]string{
		CreateTypeMonolithicSparse:            "monolithicSparse",
		CreateTypeVmfsSparse:                  "vmfsSparse",
		CreateTypeMonolithicFlat:              "monolithicFlat",
		CreateTypeVmfs:                        "vmfs",
		CreateTypeTwoGbMaxExtentSparse:        "twoGbMaxExtentSparse",
		CreateTypeTwoGbMaxExtentFlat:          "twoGbMaxExtentFlat",
		CreateTypeFullDevice:                  "fullDevice",
		CreateTypeVmfsRaw:                     "vmfsRaw",
		CreateTypePartitionedDevice:           "partitionedDevice",
		CreateTypeVmfsRawDeviceMap:            "vmfsRawDeviceMap",
		CreateTypeVmfsPassthroughRawDeviceMap: "vmfsPassthroughRawDeviceMap",
		CreateTypeStreamOptimized:             "streamOptimized",
	}

	createTypeTokens = map[string]DiskCreateType{}
)

// DiskAdapterType is the closed set of `ddb.adapterType` tokens.
type DiskAdapterType int

const (
	AdapterTypeNone DiskAdapterType = iota
	AdapterTypeIde
	AdapterTypeBusLogicScsi
	AdapterTypeLsiLogicScsi
	AdapterTypeLegacyEsx
)

var (
	adapterTypeNames = map[DiskAdapterType]string{
		AdapterTypeIde:          "ide",
		AdapterTypeBusLogicScsi: "buslogic",
		AdapterTypeLsiLogicScsi: "lsilogic",
		AdapterTypeLegacyEsx:    "legacyESX",
	}

	adapterTypeTokens = map[string]DiskAdapterType{}
)

func init() {
	for createType, token := range createTypeNames {
		createTypeTokens[token] = createType
	}

	for adapterType, token := range adapterTypeNames {
		adapterTypeTokens[token] = adapterType
	}
}

func (dct DiskCreateType) String() string {
	return createTypeNames[dct]
}

func (dat DiskAdapterType) String() string {
	return adapterTypeNames[dat]
}

// ParseCreateType maps a `createType` token to its enumeration value.
func ParseCreateType(token string) (dct DiskCreateType, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	dct, found := createTypeTokens[token]
	if found == false {
		log.Panic(ErrUnknownEnum)
	}

	return dct, nil
}

// ParseAdapterType maps a `ddb.adapterType` token to its enumeration value.
func ParseAdapterType(token string) (dat DiskAdapterType, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	dat, found := adapterTypeTokens[token]
	if found == false {
		log.Panic(ErrUnknownEnum)
	}

	return dat, nil
}

// FormatDescriptorUuid renders a GUID in the descriptor format: sixteen hex
// bytes separated by single spaces, with a dash between byte seven and byte
// eight.
func FormatDescriptorUuid(guid [16]byte) string {
	parts := make([]string, 16)
	for i, c := range guid {
		parts[i] = fmt.Sprintf("%02x", c)
	}

	return strings.Join(parts[:8], " ") + "-" + strings.Join(parts[8:], " ")
}

// ParseDescriptorUuid accepts space or dash separators and requires exactly
// sixteen hex-byte tokens.
func ParseDescriptorUuid(s string) (guid [16]byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-'
	})

	if len(tokens) != 16 {
		log.Panic(ErrInvalidUuid)
	}

	for i, token := range tokens {
		value, err := strconv.ParseUint(token, 16, 8)
		if err != nil {
			log.Panic(ErrInvalidUuid)
		}

		guid[i] = byte(value)
	}

	return guid, nil
}

// formatContentId renders a content-id as eight lowercase hex digits.
func formatContentId(cid uint32) string {
	return fmt.Sprintf("%08x", cid)
}

// parseContentId parses an eight-digit hex content-id.
func parseContentId(s string) (cid uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	value, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		log.Panic(ErrMalformedLine)
	}

	return uint32(value), nil
}

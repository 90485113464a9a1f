package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-vdisk"
)

type rootParameters struct {
	Filepath   string `short:"f" long:"filepath" description:"File-path of disk image carrying an LDM database" required:"true"`
	Offset     int64  `short:"o" long:"offset" description:"Byte offset of the database within the image"`
	ShowDetail bool   `short:"d" long:"detail" description:"Dump every record"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	_, err = f.Seek(rootArguments.Offset, os.SEEK_SET)
	log.PanicIf(err)

	db, err := vdisk.NewDatabase(f)
	log.PanicIf(err)

	if rootArguments.ShowDetail == true {
		db.Dump()
		return
	}

	header := db.Header()

	fmt.Printf("Group: [%s] GUID=[%s]\n", header.GroupNameString(), header.DiskGroupGuidString())
	fmt.Printf("Records: (%d)\n", db.RecordCount())
	fmt.Printf("\n")

	for _, dr := range db.Disks() {
		fmt.Printf("Disk (%d): [%s] GUID=[%s]\n", dr.RecordId(), dr.RecordName(), dr.DiskGuidString())
	}

	fmt.Printf("\n")

	for _, vr := range db.Volumes() {
		fmt.Printf("Volume (%d): [%s] %s sectors\n", vr.RecordId(), vr.RecordName(), humanize.Comma(int64(vr.SizeLba)))

		for _, cr := range db.VolumeComponents(vr.RecordId()) {
			fmt.Printf("  Component (%d): [%s]\n", cr.RecordId(), cr.RecordName())

			for _, er := range db.ComponentExtents(cr.RecordId()) {
				fmt.Printf("    Extent (%d): disk=(%d) offset=(%d) %s sectors\n", er.RecordId(), er.DiskId, er.DiskOffsetLba, humanize.Comma(int64(er.SizeLba)))
			}
		}
	}
}

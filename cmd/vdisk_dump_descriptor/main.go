package main

import (
	"fmt"
	"os"
	"path"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-vdisk"
)

type rootParameters struct {
	Filepath   string `short:"f" long:"filepath" description:"File-path of VMDK descriptor file" required:"true"`
	ShowDetail bool   `short:"d" long:"detail" description:"Show raw section entries"`
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

	fl := vdisk.NewHostFileLocator(path.Dir(rootArguments.Filepath))

	df, err := vdisk.LoadDescriptorFile(fl, path.Base(rootArguments.Filepath))
	log.PanicIf(err)

	if rootArguments.ShowDetail == true {
		df.Dump()
		return
	}

	version, err := df.Version()
	log.PanicIf(err)

	cid, err := df.ContentId()
	log.PanicIf(err)

	parentCid, err := df.ParentContentId()
	log.PanicIf(err)

	createType, err := df.CreateType()
	log.PanicIf(err)

	adapterType, err := df.AdapterType()
	log.PanicIf(err)

	fmt.Printf("Version: (%d)\n", version)
	fmt.Printf("ContentId: (%08x)\n", cid)
	fmt.Printf("ParentContentId: (%08x)\n", parentCid)
	fmt.Printf("CreateType: [%s]\n", createType)
	fmt.Printf("AdapterType: [%s]\n", adapterType)
	fmt.Printf("\n")

	for _, ed := range df.Extents() {
		fmt.Printf("%10s %15s sectors %10s %s\n", ed.Access, humanize.Comma(int64(ed.SizeSectors)), ed.ExtentType, ed.Filename)
	}
}

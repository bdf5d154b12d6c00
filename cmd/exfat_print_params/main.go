package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"

	"github.com/bayedieng/obliteration/exfat"
)

type rootParameters struct {
	Filepath string `short:"f" long:"filepath" description:"File-path of exFAT filesystem" required:"true"`
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

	osFs := afero.NewOsFs()

	f, err := osFs.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	fs, err := exfat.Open(f)
	log.PanicIf(err)

	if label, found := fs.Label(); found == true {
		fmt.Printf("Volume label: [%s]\n", label)
	} else {
		fmt.Printf("Volume label: (none)\n")
	}

	fmt.Printf("\n")

	fs.Params().Dump()
}

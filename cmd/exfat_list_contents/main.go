package main

import (
	"fmt"
	"os"

	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"

	"github.com/bayedieng/obliteration/exfat"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of exFAT filesystem" required:"true"`
	FilenameFilter string `short:"p" long:"pattern" description:"Filename filter"`
	ShowDetail     bool   `short:"d" long:"detail" description:"Show additional entry detail"`
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

	tree := exfat.NewTree(fs)

	err = tree.Load()
	log.PanicIf(err)

	files, nodes, err := tree.List()
	log.PanicIf(err)

	for _, currentFilepath := range files {
		node := nodes[currentFilepath]

		if rootArguments.FilenameFilter != "" {
			// The filepaths are separated by Windows-standard backward-
			// slashes and won't necessarily split correctly on all
			// platforms, so match against the name from the node.
			filename := node.Name()

			isMatched, err := filepath.Match(rootArguments.FilenameFilter, filename)
			log.PanicIf(err)

			if isMatched != true {
				continue
			}
		}

		fde := node.FileDirectoryEntry()
		sde := node.StreamDirectoryEntry()

		if rootArguments.ShowDetail == true {
			fmt.Printf("## %s\n", currentFilepath)
			fmt.Printf("\n")

			fde.Dump()
			sde.Dump()
		} else {
			fmt.Printf("%15s %30s %s\n", humanize.Comma(int64(sde.ValidDataLength)), fde.LastModifiedTimestamp, currentFilepath)
		}
	}
}

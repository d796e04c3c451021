// musgen regenerates core/records_mus.gen.go, the MUS codecs used by the
// badger record store. Run it from the repository root or from core/.
// Timestamps are stored as unix microseconds.
package main

import (
	"log"
	"os"
	"path/filepath"
	"reflect"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/recordstream/core"
)

const output = "core/records_mus.gen.go"

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	if filepath.Base(cwd) == "core" {
		if err := os.Chdir(".."); err != nil {
			log.Fatal(err)
		}
	}

	g, err := musgen.NewCodeGenerator(genops.WithPkgPath("github.com/poiesic/recordstream/core"))
	if err != nil {
		log.Fatal(err)
	}
	g.AddDefinedType(reflect.TypeFor[core.ID]())
	g.AddDefinedType(reflect.TypeFor[core.Status]())

	micro := typeops.WithTimeUnit(typeops.Micro)
	err = g.AddStruct(reflect.TypeFor[core.Record](),
		structops.WithField(), structops.WithField(), structops.WithField(), // ids
		structops.WithField(), structops.WithField(), structops.WithField(), // name, extension, mime
		structops.WithField(),                                               // version
		structops.WithField(), structops.WithField(), structops.WithField(), // statuses, reason
		structops.WithField(micro), structops.WithField(micro), structops.WithField(micro))
	if err != nil {
		log.Fatal(err)
	}
	err = g.AddStruct(reflect.TypeFor[core.Chunk](),
		structops.WithField(), structops.WithField(), structops.WithField(), structops.WithField(),
		structops.WithField(), structops.WithField(), structops.WithField(),
		structops.WithField(micro))
	if err != nil {
		log.Fatal(err)
	}

	src, err := g.Generate()
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(output, src, 0o644); err != nil {
		log.Fatal(err)
	}
}

// schema 輸出 gorm model 對應的 DDL，提供 atlas 作為 external schema 使用：
//
//	data "external_schema" "gorm" {
//	  program = ["go", "run", "./tools/schema"]
//	}
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"productcatalog/adapters/database"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, args []string) error {
	dialect := "postgres"
	if len(args) > 0 {
		dialect = args[0]
	}
	stmts, err := gormschema.New(dialect).Load(database.Models()...)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, stmts)
	return err
}

package db

import (
	"strings"
	"testing"
)

func TestSchemaFilesAreOrderedAndIdempotent(t *testing.T) {
	files, err := SchemaFiles()
	if err != nil {
		t.Fatalf("SchemaFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "schema/001_init.sql" {
		t.Fatalf("unexpected schema files %v", files)
	}
	for _, name := range files {
		ddl, err := schemaFS.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		for _, stmt := range strings.Split(string(ddl), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if !strings.Contains(stmt, "IF NOT EXISTS") {
				t.Errorf("%s: statement is not idempotent: %.60s", name, stmt)
			}
		}
	}
}

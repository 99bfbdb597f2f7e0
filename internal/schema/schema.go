// Package schema holds the table catalogue that grounds SQL generation.
package schema

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"

	"github.com/duckmesh/sqlassist/internal/storage"
)

//go:embed default.toml
var defaultCatalogue []byte

// UserConfigPath is looked up under the XDG config directories.
const UserConfigPath = "sqlassist/schema.toml"

type Catalogue struct {
	Dialect string   `toml:"dialect"`
	Tables  []Table  `toml:"tables"`
	Rules   []string `toml:"rules"`
}

type Table struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Columns     []Column `toml:"columns"`
}

type Column struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"`
	Description string `toml:"description"`
}

func Default() Catalogue {
	cat, err := Load(bytes.NewReader(defaultCatalogue))
	if err != nil {
		panic(fmt.Sprintf("embedded schema catalogue is invalid: %v", err))
	}
	return cat
}

func Load(r io.Reader) (Catalogue, error) {
	var cat Catalogue
	if _, err := toml.NewDecoder(r).Decode(&cat); err != nil {
		return Catalogue{}, fmt.Errorf("decode schema catalogue: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return Catalogue{}, err
	}
	return cat, nil
}

func LoadFile(path string) (Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("open schema catalogue: %w", err)
	}
	defer func() { _ = f.Close() }()
	cat, err := Load(f)
	if err != nil {
		return Catalogue{}, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

func LoadObject(ctx context.Context, store storage.ObjectStore, key string) (Catalogue, error) {
	if store == nil {
		return Catalogue{}, fmt.Errorf("object store is required to load schema %q", key)
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return Catalogue{}, fmt.Errorf("fetch schema catalogue %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	cat, err := Load(reader)
	if err != nil {
		return Catalogue{}, fmt.Errorf("%s: %w", key, err)
	}
	return cat, nil
}

// Source says where a catalogue should come from. Empty fields are skipped.
type Source struct {
	File      string
	ObjectKey string
	Store     storage.ObjectStore
}

// Resolve picks the first configured source: file, object key, XDG config
// file, then the embedded default.
func Resolve(ctx context.Context, src Source) (Catalogue, string, error) {
	if file := strings.TrimSpace(src.File); file != "" {
		cat, err := LoadFile(file)
		return cat, file, err
	}
	if key := strings.TrimSpace(src.ObjectKey); key != "" {
		cat, err := LoadObject(ctx, src.Store, key)
		return cat, key, err
	}
	if path, err := xdg.SearchConfigFile(UserConfigPath); err == nil {
		cat, err := LoadFile(path)
		return cat, path, err
	}
	return Default(), "embedded", nil
}

func (c Catalogue) Validate() error {
	if len(c.Tables) == 0 {
		return errors.New("schema catalogue has no tables")
	}
	for i, table := range c.Tables {
		if strings.TrimSpace(table.Name) == "" {
			return fmt.Errorf("table %d has no name", i+1)
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", table.Name)
		}
		for j, column := range table.Columns {
			if strings.TrimSpace(column.Name) == "" {
				return fmt.Errorf("table %q column %d has no name", table.Name, j+1)
			}
		}
	}
	return nil
}

// Describe renders the catalogue the way it appears in a generation prompt.
func (c Catalogue) Describe() string {
	var b strings.Builder
	if dialect := strings.TrimSpace(c.Dialect); dialect != "" {
		fmt.Fprintf(&b, "SQL dialect: %s\n\n", dialect)
	}
	for i, table := range c.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table: %s\n", table.Name)
		if desc := strings.TrimSpace(table.Description); desc != "" {
			fmt.Fprintf(&b, "%s\n", desc)
		}
		for _, column := range table.Columns {
			b.WriteString("- ")
			b.WriteString(column.Name)
			if typ := strings.TrimSpace(column.Type); typ != "" {
				fmt.Fprintf(&b, " (%s)", typ)
			}
			if desc := strings.TrimSpace(column.Description); desc != "" {
				fmt.Fprintf(&b, ": %s", desc)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// TableNames lists table names in catalogue order.
func (c Catalogue) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for _, table := range c.Tables {
		names = append(names, table.Name)
	}
	return names
}

package catalog

import (
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/cozodb/cozo-sub000/cozoerr"
)

// Catalog is the process-wide registry of stored-relation schemas. The registry itself is
// just name -> *Relation under a mutex. Its mutations (Create, Replace,
// Remove, Rename) take effect in memory at once; they are not written to
// the storage engine and are not part of any storage transaction, so
// rolling back a script does not undo them.
type Catalog struct {
	mu        sync.RWMutex
	relations map[string]*Relation
}

func New() *Catalog {
	return &Catalog{relations: map[string]*Relation{}}
}

// Get returns the named relation's schema, or cozoerr.ErrNotFound.
func (c *Catalog) Get(name string) (*Relation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.relations[name]
	if !ok {
		return nil, cozoerr.ErrNotFound.New("stored relation " + name)
	}
	return r, nil
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.relations[name]
	return ok
}

// Create registers a new relation. Returns cozoerr.ErrValidation if the name
// is already taken.
func (c *Catalog) Create(r *Relation) error {
	if err := r.ValidateKeyColumns(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relations[r.Name]; ok {
		return cozoerr.ErrValidation.New("stored relation " + r.Name + " already exists")
	}
	c.relations[r.Name] = r
	return nil
}

// Replace overwrites an existing relation's schema,
// creating it if absent.
func (c *Catalog) Replace(r *Relation) error {
	if err := r.ValidateKeyColumns(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relations[r.Name] = r
	return nil
}

// Remove drops a relation's schema (::remove).
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.relations[name]; !ok {
		return cozoerr.ErrNotFound.New("stored relation " + name)
	}
	delete(c.relations, name)
	return nil
}

// Rename moves a schema from oldName to newName (::rename).
func (c *Catalog) Rename(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.relations[oldName]
	if !ok {
		return cozoerr.ErrNotFound.New("stored relation " + oldName)
	}
	if _, exists := c.relations[newName]; exists {
		return cozoerr.ErrValidation.New("stored relation " + newName + " already exists")
	}
	r.Name = newName
	delete(c.relations, oldName)
	c.relations[newName] = r
	return nil
}

// Names lists every visible (non-Hidden) relation name, the listing the
// programmatic API's backup walks.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.relations))
	for n, r := range c.relations {
		if r.AccessLevel != Hidden {
			names = append(names, n)
		}
	}
	return names
}

// manifestColumn/manifestRelation are the YAML-serializable mirror of
// Column/Relation, used by ExportManifest/ImportManifest for the
// human-readable catalog manifest. Triggers
// are intentionally omitted: the manifest describes schema shape for
// backup/export purposes, not executable program bodies.
type manifestColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

type manifestRelation struct {
	Name        string           `yaml:"name"`
	KeyCols     []manifestColumn `yaml:"key_cols"`
	ValCols     []manifestColumn `yaml:"val_cols"`
	AccessLevel string           `yaml:"access_level"`
}

// ExportManifest renders the catalog's schema (excluding Hidden relations)
// as YAML, suitable for inclusion in a backup package alongside row data.
func (c *Catalog) ExportManifest() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []manifestRelation
	for _, r := range c.relations {
		if r.AccessLevel == Hidden {
			continue
		}
		out = append(out, manifestRelation{
			Name:        r.Name,
			KeyCols:     toManifestColumns(r.KeyCols),
			ValCols:     toManifestColumns(r.ValCols),
			AccessLevel: accessLevelName(r.AccessLevel),
		})
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return nil, cozoerr.ErrInternal.New("marshaling catalog manifest: " + err.Error())
	}
	return b, nil
}

// ImportManifest registers every relation described by a YAML manifest
// produced by ExportManifest, as part of restoring a backup. Existing
// relations of the same name are left untouched; use Replace afterward if
// overwriting is desired.
func (c *Catalog) ImportManifest(b []byte) error {
	var rels []manifestRelation
	if err := yaml.Unmarshal(b, &rels); err != nil {
		return cozoerr.ErrValidation.New("parsing catalog manifest: " + err.Error())
	}
	for _, mr := range rels {
		r := &Relation{
			Name:        mr.Name,
			KeyCols:     fromManifestColumns(mr.KeyCols),
			ValCols:     fromManifestColumns(mr.ValCols),
			AccessLevel: accessLevelFromName(mr.AccessLevel),
		}
		if c.Has(r.Name) {
			continue
		}
		if err := c.Create(r); err != nil {
			return err
		}
	}
	return nil
}

func fromManifestColumns(cols []manifestColumn) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, Column{Name: c.Name, Type: columnTypeFromName(c.Type), Nullable: c.Nullable})
	}
	return out
}

func columnTypeFromName(name string) ColumnType {
	switch name {
	case "Bool":
		return ColBool
	case "Int":
		return ColInt
	case "Float":
		return ColFloat
	case "String":
		return ColString
	case "Bytes":
		return ColBytes
	case "Uuid":
		return ColUuid
	case "List":
		return ColList
	case "Vec":
		return ColVec
	case "Json":
		return ColJson
	default:
		return ColAny
	}
}

func accessLevelFromName(name string) AccessLevel {
	switch name {
	case "protected":
		return Protected
	case "read_only":
		return ReadOnly
	case "hidden":
		return Hidden
	default:
		return Normal
	}
}

func toManifestColumns(cols []Column) []manifestColumn {
	out := make([]manifestColumn, 0, len(cols))
	for _, c := range cols {
		out = append(out, manifestColumn{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable})
	}
	return out
}

func accessLevelName(a AccessLevel) string {
	switch a {
	case Protected:
		return "protected"
	case ReadOnly:
		return "read_only"
	case Hidden:
		return "hidden"
	default:
		return "normal"
	}
}

package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/catalog"
)

func sampleRelation(name string) *catalog.Relation {
	return &catalog.Relation{
		Name:    name,
		KeyCols: []catalog.Column{{Name: "id", Type: catalog.ColInt}},
		ValCols: []catalog.Column{{Name: "label", Type: catalog.ColString, Nullable: true}},
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	c := catalog.New()
	require.NoError(t, c.Create(sampleRelation("people")))
	require.Error(t, c.Create(sampleRelation("people")))
}

func TestRenameMovesSchema(t *testing.T) {
	c := catalog.New()
	require.NoError(t, c.Create(sampleRelation("people")))
	require.NoError(t, c.Rename("people", "folks"))
	require.False(t, c.Has("people"))
	require.True(t, c.Has("folks"))
}

func TestExportImportManifestRoundTrip(t *testing.T) {
	c := catalog.New()
	require.NoError(t, c.Create(sampleRelation("people")))
	manifest, err := c.ExportManifest()
	require.NoError(t, err)

	c2 := catalog.New()
	require.NoError(t, c2.ImportManifest(manifest))
	r, err := c2.Get("people")
	require.NoError(t, err)
	require.Equal(t, "id", r.KeyCols[0].Name)
	require.Equal(t, catalog.ColInt, r.KeyCols[0].Type)
}

func TestValidateKeyColumnsRejectsVecAndJson(t *testing.T) {
	r := &catalog.Relation{
		Name:    "bad",
		KeyCols: []catalog.Column{{Name: "v", Type: catalog.ColVec}},
	}
	require.Error(t, r.ValidateKeyColumns())

	j := &catalog.Relation{
		Name:    "bad_json",
		KeyCols: []catalog.Column{{Name: "j", Type: catalog.ColJson}},
	}
	require.Error(t, j.ValidateKeyColumns())
}

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/modref/internal/model"
	"github.com/phobologic/modref/internal/parse"
	"github.com/phobologic/modref/internal/vfs"
)

const dummyModule = "export let foo: any[];"

func fixture() vfs.Directory {
	return vfs.Directory{
		"tmp": vfs.Directory{
			"src": vfs.Directory{
				"main.ts": "import * as c from '@angular/core';",
				"node_modules": vfs.Directory{
					"@angular": vfs.Directory{
						"core.d.ts":            dummyModule,
						"core.metadata.json":   `{"__symbolic":"module", "version": 2, "metadata": {"foo": {"__symbolic": "class"}}}`,
						"unused.d.ts":          dummyModule,
						"empty.d.ts":           "export declare var a: string;",
						"empty.metadata.json":  "[]",
						"broken.d.ts":          dummyModule,
						"broken.metadata.json": `{"__symbolic":"module", "version": 1, "metadata": {`,
					},
				},
				"metadata_versions": vfs.Directory{
					"v1.d.ts": `
						export declare class Bar {
							ngOnInit() {}
						}
						export declare class BarChild extends Bar {}
					`,
					"v1.metadata.json": `{"__symbolic":"module", "version": 1, "metadata": {"foo": {"__symbolic": "class"}}}`,
					"both.d.ts":        "export declare class Extra {}",
					"both.metadata.json": `[
						{"__symbolic":"module","version":1,"metadata":{"foo":{"__symbolic":"class"}}},
						{"__symbolic":"module","version":2,"metadata":{"foo":{"__symbolic":"class"},"other":{"__symbolic":"function"}}}
					]`,
					"orphan.metadata.json": `{"__symbolic":"module","version":1,"metadata":{"foo":{"__symbolic":"class"}}}`,
					"lib.js":               "module.exports = {};",
					"lib.d.ts":             "export declare class Lib {}",
					"lib.metadata.json":    `{"__symbolic":"module","version":1,"metadata":{}}`,
				},
			},
		},
	}
}

type countingSource struct {
	inner DeclarationSource
	calls atomic.Int32
}

func (c *countingSource) ExportedSymbols(file string) (*model.SymbolTable, error) {
	c.calls.Add(1)
	return c.inner.ExportedSymbols(file)
}

type failingSource struct{}

func (failingSource) ExportedSymbols(file string) (*model.SymbolTable, error) {
	return nil, errors.New("parser exploded")
}

type countingFS struct {
	vfs.FileSystem
	reads atomic.Int32
}

func (c *countingFS) ReadFile(path string) ([]byte, error) {
	c.reads.Add(1)
	return c.FileSystem.ReadFile(path)
}

func newStore(t *testing.T, opts ...Option) (*Store, *countingSource) {
	t.Helper()
	fsys := vfs.NewMemory(fixture())
	src := &countingSource{inner: parse.NewSource(fsys)}
	s, err := NewStore(fsys, src, opts...)
	require.NoError(t, err)
	return s, src
}

func TestReadsVersion2Metadata(t *testing.T) {
	t.Parallel()
	s, src := newStore(t)

	res, err := s.MetadataFor("/tmp/src/node_modules/@angular/core.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.JSONEq(t, `[{"__symbolic":"module","version":2,"metadata":{"foo":{"__symbolic":"class"}}}]`, jsonOf(t, res.Records))
	assert.False(t, res.Degraded)
	assert.False(t, res.Synthesized)
	assert.Zero(t, src.calls.Load())
}

func TestUnknownModules(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	for _, f := range []string{
		"/tmp/src/node_modules/@angular/unused.d.ts",
		"/tmp/src/node_modules/@angular/missing.d.ts",
		"/nowhere/at/all.ts",
	} {
		res, err := s.MetadataFor(f)
		require.NoError(t, err, f)
		assert.Nil(t, res, f)
	}
}

func TestEmptyMetadataIsNotAbsent(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	res, err := s.MetadataFor("/tmp/src/node_modules/@angular/empty.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.False(t, res.Degraded)
}

func TestSynthesizesVersion2FromDeclarations(t *testing.T) {
	t.Parallel()
	s, src := newStore(t)

	res, err := s.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Records, 2)
	assert.True(t, res.Synthesized)
	assert.False(t, res.Degraded)
	assert.EqualValues(t, 1, src.calls.Load())

	assert.JSONEq(t, `[
		{"__symbolic":"module","version":1,"metadata":{"foo":{"__symbolic":"class"}}},
		{"__symbolic":"module","version":2,"metadata":{
			"foo":{"__symbolic":"class"},
			"Bar":{"__symbolic":"class","members":{"ngOnInit":[{"__symbolic":"method"}]}},
			"BarChild":{"__symbolic":"class","extends":{"__symbolic":"reference","name":"Bar"}}
		}}
	]`, jsonOf(t, res.Records))
	assert.Equal(t, []string{"Bar", "BarChild", "foo"}, res.Records[1].Symbols.Names())

	latest, ok := res.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Version)
}

func TestBothVersionsReturnedVerbatim(t *testing.T) {
	t.Parallel()
	s, src := newStore(t)

	res, err := s.MetadataFor("/tmp/src/metadata_versions/both.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Synthesized)
	assert.Zero(t, src.calls.Load())
	assert.JSONEq(t, `[
		{"__symbolic":"module","version":1,"metadata":{"foo":{"__symbolic":"class"}}},
		{"__symbolic":"module","version":2,"metadata":{"foo":{"__symbolic":"class"},"other":{"__symbolic":"function"}}}
	]`, jsonOf(t, res.Records))
	assert.False(t, res.Records[1].Symbols.Has("Extra"))
}

func TestDegradedWithoutDeclarations(t *testing.T) {
	t.Parallel()

	// No declaration file next to the metadata.
	s, src := newStore(t)
	res, err := s.MetadataFor("/tmp/src/metadata_versions/orphan.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.False(t, res.Synthesized)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Records[0].Version)
	assert.Zero(t, src.calls.Load())

	// No declaration source at all.
	bare, err := NewStore(vfs.NewMemory(fixture()), nil)
	require.NoError(t, err)
	res, err = bare.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Records, 1)
}

func TestScriptQueryUsesSiblingDeclaration(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	res, err := s.MetadataFor("/tmp/src/metadata_versions/lib.js")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Synthesized)
	assert.Equal(t, []string{"Lib"}, res.Records[1].Symbols.Names())
}

func TestMalformedRecordFails(t *testing.T) {
	t.Parallel()
	s, src := newStore(t)

	res, err := s.MetadataFor("/tmp/src/node_modules/@angular/broken.d.ts")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "broken.metadata.json")
	assert.Zero(t, src.calls.Load())
}

func TestDeclarationSourceFailurePropagates(t *testing.T) {
	t.Parallel()

	s, err := NewStore(vfs.NewMemory(fixture()), failingSource{})
	require.NoError(t, err)
	_, err = s.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "parser exploded")
}

func TestPerVersionSuffixes(t *testing.T) {
	t.Parallel()

	fsys := vfs.NewMemory(vfs.Directory{
		"p": vfs.Directory{
			"a.d.ts":             "export declare class A {}",
			"a.metadata.v1.json": `{"__symbolic":"module","version":1,"metadata":{"old":{"__symbolic":"class"}}}`,
			"a.metadata.v2.json": `{"__symbolic":"module","version":2,"metadata":{"A":{"__symbolic":"class"}}}`,
			"b.d.ts":             "export declare class B {}",
			"b.metadata.v1.json": `{"__symbolic":"module","version":1,"metadata":{}}`,
		},
	})
	s, err := NewStore(fsys, parse.NewSource(fsys), WithSuffixes(".metadata.v1.json", ".metadata.v2.json"))
	require.NoError(t, err)

	res, err := s.MetadataFor("/p/a.d.ts")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.Records[0].Version)
	assert.Equal(t, 2, res.Records[1].Version)
	assert.False(t, res.Synthesized)

	res, err = s.MetadataFor("/p/b.d.ts")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.True(t, res.Synthesized)
	assert.Equal(t, []string{"B"}, res.Records[1].Symbols.Names())
}

func TestResultsAreCached(t *testing.T) {
	t.Parallel()

	fsys := &countingFS{FileSystem: vfs.NewMemory(fixture())}
	s, err := NewStore(fsys, parse.NewSource(fsys))
	require.NoError(t, err)

	first, err := s.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	reads := fsys.reads.Load()

	first.Records = append(first.Records[:0], model.Record{Version: 99})

	second, err := s.MetadataFor("/tmp/src/metadata_versions/v1.ts")
	require.NoError(t, err)
	assert.Equal(t, reads, fsys.reads.Load())
	require.Len(t, second.Records, 2)
	assert.Equal(t, 1, second.Records[0].Version)

	uncached, err := NewStore(fsys, parse.NewSource(fsys), WithCacheSize(0))
	require.NoError(t, err)
	_, err = uncached.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	_, err = uncached.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	assert.Greater(t, fsys.reads.Load(), reads*2)
}

func TestCachedRecordsAreNotShared(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	first, err := s.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	want := jsonOf(t, first.Records)

	first.Records[1].Symbols.Set("Injected", model.Symbol{Kind: model.Value})
	first.Records[0].Symbols.Set("Injected", model.Symbol{Kind: model.Value})
	first.Records[0].Extra = map[string]json.RawMessage{"exports": json.RawMessage(`[]`)}

	second, err := s.MetadataFor("/tmp/src/metadata_versions/v1.d.ts")
	require.NoError(t, err)
	assert.JSONEq(t, want, jsonOf(t, second.Records))
	assert.False(t, second.Records[1].Symbols.Has("Injected"))
}

func TestModuleExtensionsShareMetadata(t *testing.T) {
	t.Parallel()

	fsys := vfs.NewMemory(vfs.Directory{
		"p": vfs.Directory{
			"esm.d.mts":         "export declare class Esm {}",
			"esm.metadata.json": `{"__symbolic":"module","version":1,"metadata":{}}`,
		},
	})
	s, err := NewStore(fsys, parse.NewSource(fsys), WithCacheSize(0))
	require.NoError(t, err)

	for _, f := range []string{"/p/esm.d.mts", "/p/esm.mts", "/p/esm.mjs"} {
		res, err := s.MetadataFor(f)
		require.NoError(t, err, f)
		require.NotNil(t, res, f)
		assert.True(t, res.Synthesized, f)
		assert.Equal(t, []string{"Esm"}, res.Records[1].Symbols.Names(), f)
	}
}

func TestMetadataForAll(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	files := []string{
		"/tmp/src/metadata_versions/v1.d.ts",
		"/tmp/src/node_modules/@angular/missing.d.ts",
		"/tmp/src/node_modules/@angular/broken.d.ts",
		"/tmp/src/node_modules/@angular/core.d.ts",
	}
	for i := 0; i < 5; i++ {
		files = append(files, fmt.Sprintf("/tmp/src/gen%d.d.ts", i))
	}

	out := s.MetadataForAll(context.Background(), files, 3)
	require.Len(t, out, len(files))
	for i, l := range out {
		assert.Equal(t, files[i], l.File)
	}
	assert.Len(t, out[0].Result.Records, 2)
	assert.Nil(t, out[1].Result)
	assert.NoError(t, out[1].Err)
	assert.ErrorIs(t, out[2].Err, ErrMalformedRecord)
	assert.Len(t, out[3].Result.Records, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out = s.MetadataForAll(ctx, files[:2], 0)
	for _, l := range out {
		assert.ErrorIs(t, l.Err, context.Canceled)
	}

	assert.Empty(t, s.MetadataForAll(context.Background(), nil, 2))
}

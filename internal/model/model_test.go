package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableOrder(t *testing.T) {
	t.Parallel()

	tbl := NewSymbolTable()
	tbl.Set("b", Symbol{Kind: Class})
	tbl.Set("a", Symbol{Kind: Function})
	tbl.Set("b", Symbol{Kind: Value})

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"b", "a"}, tbl.Names())
	got, ok := tbl.Get("b")
	require.True(t, ok)
	assert.Equal(t, Value, got.Kind)
	assert.False(t, tbl.Has("c"))

	var nilTable *SymbolTable
	assert.Equal(t, 0, nilTable.Len())
	assert.Nil(t, nilTable.Names())
}

func TestSymbolCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := Symbol{
		Kind:    Class,
		Members: map[string][]Member{"init": {{Kind: Method}}},
		Extends: &Reference{Name: "Base"},
	}
	cp := orig.Clone()
	cp.Members["init"][0].Kind = Property
	cp.Members["other"] = []Member{{Kind: Method}}
	cp.Extends.Name = "Other"

	assert.Equal(t, Method, orig.Members["init"][0].Kind)
	assert.NotContains(t, orig.Members, "other")
	assert.Equal(t, "Base", orig.Extends.Name)
}

func TestDecodeSingleRecord(t *testing.T) {
	t.Parallel()

	records, err := DecodeRecords([]byte(`{"__symbolic":"module", "version": 2, "metadata": {"foo": {"__symbolic": "class"}}}`))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, 2, r.Version)
	assert.Equal(t, []string{"foo"}, r.Symbols.Names())
	foo, _ := r.Symbols.Get("foo")
	assert.True(t, foo.IsClass())
	assert.Nil(t, foo.Members)
	assert.Nil(t, r.Extra)
}

func TestDecodeRecordArrayAndNull(t *testing.T) {
	t.Parallel()

	records, err := DecodeRecords([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = DecodeRecords([]byte(" null\n"))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = DecodeRecords([]byte(`[
		{"__symbolic":"module","version":1,"metadata":{}},
		{"__symbolic":"module","version":2,"metadata":{"x":1}}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Version)
	assert.Equal(t, 2, records[1].Version)

	x, ok := records[1].Symbols.Get("x")
	require.True(t, ok)
	assert.Equal(t, Value, x.Kind)
	assert.Equal(t, json.RawMessage("1"), x.Literal)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	bad := map[string]string{
		"empty":           ``,
		"scalar":          `42`,
		"not json":        `{"__symbolic":`,
		"wrong tag":       `{"__symbolic":"class","version":1}`,
		"missing version": `{"__symbolic":"module","metadata":{}}`,
		"string version":  `{"__symbolic":"module","version":"1"}`,
		"zero version":    `{"__symbolic":"module","version":0}`,
		"metadata array":  `{"__symbolic":"module","version":1,"metadata":[]}`,
		"null element":    `[null]`,
		"bad members":     `{"__symbolic":"module","version":1,"metadata":{"A":{"__symbolic":"class","members":{"m":"x"}}}}`,
		"untagged member": `{"__symbolic":"module","version":1,"metadata":{"A":{"__symbolic":"class","members":{"m":[{}]}}}}`,
		"bare word":       `nope`,
	}
	for name, data := range bad {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRecords([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestDecodeClassWithMembersAndExtends(t *testing.T) {
	t.Parallel()

	data := `{"__symbolic":"module","version":2,"exports":[{"from":"./other"}],"metadata":{
		"Zed": {"__symbolic":"function","parameters":["a"]},
		"Bar": {"__symbolic":"class","members":{"ngOnInit":[{"__symbolic":"method"}],"__ctor__":[{"__symbolic":"constructor","parameters":[]}]}},
		"BarChild": {"__symbolic":"class","extends":{"__symbolic":"reference","name":"Bar"}},
		"Remote": {"__symbolic":"class","extends":{"__symbolic":"reference","module":"./base","name":"Base"}},
		"Odd": {"__symbolic":"class","extends":{"__symbolic":"select","expression":{},"member":"X"}}
	}}`
	records, err := DecodeRecords([]byte(data))
	require.NoError(t, err)
	r := records[0]

	assert.Equal(t, []string{"Zed", "Bar", "BarChild", "Remote", "Odd"}, r.Symbols.Names())
	assert.Contains(t, r.Extra, "exports")

	zed, _ := r.Symbols.Get("Zed")
	assert.Equal(t, Function, zed.Kind)
	assert.JSONEq(t, `["a"]`, string(zed.Extra["parameters"]))

	bar, _ := r.Symbols.Get("Bar")
	assert.Equal(t, []string{"__ctor__", "ngOnInit"}, bar.MemberNames())
	assert.Equal(t, Constructor, bar.Members["__ctor__"][0].Kind)
	assert.Contains(t, bar.Members["__ctor__"][0].Extra, "parameters")

	child, _ := r.Symbols.Get("BarChild")
	require.NotNil(t, child.Extends)
	assert.Equal(t, Reference{Name: "Bar"}, *child.Extends)

	remote, _ := r.Symbols.Get("Remote")
	assert.Equal(t, Reference{Module: "./base", Name: "Base"}, *remote.Extends)

	odd, _ := r.Symbols.Get("Odd")
	assert.Nil(t, odd.Extends)
	assert.Contains(t, odd.Extra, "extends")
}

func TestRecordRoundTripPreservesContent(t *testing.T) {
	t.Parallel()

	data := `{"__symbolic":"module","version":1,"importAs":"lib","metadata":{"b":{"__symbolic":"class","members":{"m":[{"__symbolic":"method","decorators":[1]}]},"extends":{"__symbolic":"reference","name":"a"}},"a":{"__symbolic":"interface"},"c":"literal","d":{"plain":true}}}`
	records, err := DecodeRecords([]byte(data))
	require.NoError(t, err)

	out, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))

	again, err := DecodeRecords(out)
	require.NoError(t, err)
	assert.Equal(t, records[0].Symbols.Names(), again[0].Symbols.Names())
}

func TestEncodeRecords(t *testing.T) {
	t.Parallel()

	out, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))

	tbl := NewSymbolTable()
	tbl.Set("foo", Symbol{Kind: Class})
	out, err = EncodeRecords([]Record{{Version: 1, Symbols: tbl}, {Version: 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"__symbolic":"module","version":1,"metadata":{"foo":{"__symbolic":"class"}}},
		{"__symbolic":"module","version":2,"metadata":{}}
	]`, string(out))
}

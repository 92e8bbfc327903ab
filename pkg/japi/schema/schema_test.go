package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/japi/pkg/japi"
	"github.com/conduit-lang/japi/pkg/japi/request"
)

type author struct {
	ID   string
	Name string
}

type article struct {
	ID        string
	Title     string
	Views     int
	CreatedAt time.Time
	Author    *author
	Tags      []string
}

type polymorphic struct{ id string }

func (p *polymorphic) JSONAPIType() string { return "things" }

func articleType() *Type {
	return NewType[*article]("articles",
		func(a *article) string { return a.ID },
		func(a *article, id string) { a.ID = id },
	).Attributes(
		Attr("title",
			func(a *article) string { return a.Title },
			func(a *article, v string) { a.Title = v },
		).Required().Sortable().Filterable("eq", "contains").Validate("min=1,max=200"),
		Attr("views",
			func(a *article) int { return a.Views },
			func(a *article, v int) { a.Views = v },
		).Sortable().Filterable(),
		Attr("created-at",
			func(a *article) time.Time { return a.CreatedAt },
			nil,
		),
	).Relationships(
		ToOne("author", []string{"authors"},
			func(a *article) *author { return a.Author },
			func(a *article, v *author) { a.Author = v },
		).Required(),
	)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		value    any
		expected Kind
	}{
		{"", String},
		{time.Time{}, String},
		{true, Boolean},
		{int64(1), Integer},
		{uint8(1), Integer},
		{1.5, Number},
		{map[string]any{}, Object},
		{struct{}{}, Object},
		{[]string{}, Array},
		{new(string), String},
	}

	for _, tt := range tests {
		t.Run(reflect.TypeOf(tt.value).String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(reflect.TypeOf(tt.value)))
		})
	}
}

func TestKind_Check(t *testing.T) {
	assert.True(t, String.Check("x"))
	assert.False(t, String.Check(json.Number("1")))
	assert.True(t, String.Check(nil))

	assert.True(t, Integer.Check(json.Number("42")))
	assert.False(t, Integer.Check(json.Number("4.2")))
	assert.True(t, Integer.Check(float64(3)))
	assert.False(t, Integer.Check("3"))

	assert.True(t, Number.Check(json.Number("4.2")))
	assert.True(t, Boolean.Check(false))
	assert.True(t, Object.Check(map[string]any{}))
	assert.True(t, Array.Check([]any{}))
	assert.True(t, Any.Check(struct{}{}))
}

func TestKind_Normalize(t *testing.T) {
	assert.Equal(t, int64(42), Integer.Normalize(json.Number("42")))
	assert.Equal(t, 4.5, Number.Normalize(json.Number("4.5")))
	assert.Equal(t, int64(7), Any.Normalize(json.Number("7")))
	assert.Equal(t, "x", String.Normalize("x"))
}

func TestAttr_GetSet(t *testing.T) {
	typ := articleType()
	a := &article{Title: "Hello"}

	title, ok := typ.Attribute("title")
	require.True(t, ok)
	assert.Equal(t, String, title.Kind)

	v, err := title.Get(nil, a)
	require.NoError(t, err)
	assert.Equal(t, "Hello", v)

	require.NoError(t, title.Set(nil, a, "World"))
	assert.Equal(t, "World", a.Title)

	views, _ := typ.Attribute("views")
	assert.Equal(t, Integer, views.Kind)
	require.NoError(t, views.Set(nil, a, int64(12)))
	assert.Equal(t, 12, a.Views)

	assert.Error(t, views.Set(nil, a, "twelve"))
	assert.Error(t, title.Set(nil, &author{}, "x"))
}

func TestAttr_TimeFromString(t *testing.T) {
	var at time.Time
	attr := Attr("at", func(a *article) time.Time { return a.CreatedAt }, func(a *article, v time.Time) { at = v })
	require.NoError(t, attr.Set(nil, &article{}, "2024-05-01T10:00:00Z"))
	assert.Equal(t, 2024, at.Year())
}

func TestAttribute_Flags(t *testing.T) {
	typ := articleType()

	title, _ := typ.Attribute("title")
	assert.True(t, title.IsRequired())
	assert.True(t, title.IsSortable())
	assert.True(t, title.AllowsFilter("contains"))
	assert.False(t, title.AllowsFilter("gt"))
	assert.Equal(t, "min=1,max=200", title.Rules())

	views, _ := typ.Attribute("views")
	assert.Equal(t, []string{"eq"}, views.FilterOps())

	createdAt, _ := typ.Attribute("created-at")
	assert.True(t, createdAt.IsReadOnly())
	assert.False(t, createdAt.IsWriteOnly())

	password := AttrFunc("password", String, nil, func(_ *request.Request, _ any, _ any) error { return nil }).WriteOnly()
	assert.True(t, password.IsWriteOnly())
	assert.False(t, password.IsReadOnly())
}

func TestRelationship_ToOne(t *testing.T) {
	typ := articleType()
	rel, ok := typ.Relationship("author")
	require.True(t, ok)
	assert.False(t, rel.ToMany)
	assert.True(t, rel.IsRequired())
	assert.False(t, rel.IsReadOnly())
	assert.True(t, rel.AllowsType("authors"))
	assert.False(t, rel.AllowsType("users"))

	a := &article{}
	v, err := rel.Get(nil, a)
	require.NoError(t, err)
	assert.Nil(t, v, "a nil pointer must come back as untyped nil")

	bob := &author{ID: "1"}
	require.NoError(t, rel.Set(nil, a, bob))
	assert.Same(t, bob, a.Author)

	require.NoError(t, rel.Set(nil, a, nil))
	assert.Nil(t, a.Author)

	assert.Error(t, rel.Set(nil, a, "not an author"))
}

func TestRelationship_ToMany(t *testing.T) {
	type owner struct{ Friends []*author }
	rel := ToMany("friends", nil,
		func(o *owner) []*author { return o.Friends },
		func(o *owner, v []*author) { o.Friends = v },
	)
	assert.True(t, rel.ToMany)
	assert.True(t, rel.AllowsType("anything"))

	o := &owner{}
	require.NoError(t, rel.Set(nil, o, []any{&author{ID: "1"}, &author{ID: "2"}}))
	assert.Len(t, o.Friends, 2)

	v, err := rel.Get(nil, o)
	require.NoError(t, err)
	assert.Len(t, v, 2)

	require.NoError(t, rel.Set(nil, o, []any{}))
	assert.Empty(t, o.Friends)
}

func TestRelationship_ReadOnly(t *testing.T) {
	rel := ToManyFunc("comments", []string{"comments"}, func(_ *request.Request, _ any) (any, error) { return nil, nil }, nil)
	assert.True(t, rel.IsReadOnly())

	rel.WithAdd(func(_ *request.Request, _ any, _ []any) error { return nil })
	assert.False(t, rel.IsReadOnly())
	assert.False(t, rel.HasAlwaysLinkage())
	assert.True(t, rel.AlwaysLinkage().HasAlwaysLinkage())
}

func TestType_Declarations(t *testing.T) {
	typ := articleType()

	assert.Equal(t, reflect.TypeOf(&article{}), typ.GoType())
	assert.Len(t, typ.AttributeList(), 3)
	assert.Len(t, typ.RelationshipList(), 1)
	assert.False(t, typ.AllowsClientID())
	assert.Nil(t, typ.Handler())

	res, err := typ.New()
	require.NoError(t, err)
	a, ok := res.(*article)
	require.True(t, ok)

	assert.True(t, typ.SetID(a, "7"))
	assert.Equal(t, "7", typ.ID(a))
	assert.Equal(t, "", typ.ID(&author{ID: "x"}))
}

func TestType_DuplicateFieldsPanic(t *testing.T) {
	assert.Panics(t, func() {
		articleType().Attributes(Attr[*article, string]("title", nil, nil))
	})
	assert.Panics(t, func() {
		articleType().Relationships(ToOneFunc("title", nil, nil, nil))
	})
}

func TestType_WithoutIDSetter(t *testing.T) {
	typ := NewType[*author]("authors", func(a *author) string { return a.ID }, nil)
	assert.False(t, typ.SetID(&author{}, "1"))
}

func TestType_WithoutFactory(t *testing.T) {
	typ := NewType[author]("authors", func(a author) string { return a.ID }, nil)
	_, err := typ.New()
	assert.Error(t, err)

	typ.WithFactory(func() any { return author{} })
	res, err := typ.New()
	require.NoError(t, err)
	assert.IsType(t, author{}, res)
}

func TestType_Clone(t *testing.T) {
	typ := articleType()
	original := &article{ID: "1", Title: "Hello", Author: &author{ID: "a1"}}

	cloned, ok := typ.Clone(original).(*article)
	require.True(t, ok)
	assert.NotSame(t, original, cloned)
	assert.Equal(t, *original, *cloned)

	cloned.Title = "Changed"
	assert.Equal(t, "Hello", original.Title)
	assert.Same(t, original.Author, cloned.Author)

	assert.Nil(t, typ.Clone(nil))
	assert.Nil(t, typ.Clone((*article)(nil)))

	values := NewType[string]("values", func(s string) string { return s }, nil)
	assert.Equal(t, "x", values.Clone("x"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	articles := articleType()
	authors := NewType[*author]("authors", func(a *author) string { return a.ID }, nil)
	things := NewType[*polymorphic]("things", func(p *polymorphic) string { return p.id }, nil)

	require.NoError(t, reg.Register(articles, authors, things))

	got, ok := reg.Type("articles")
	require.True(t, ok)
	assert.Same(t, articles, got)

	names := make([]string, 0)
	for _, typ := range reg.Types() {
		names = append(names, typ.Name)
	}
	assert.Equal(t, []string{"articles", "authors", "things"}, names)

	typ, err := reg.TypeOf(&author{})
	require.NoError(t, err)
	assert.Same(t, authors, typ)

	typ, err = reg.TypeOf(&polymorphic{})
	require.NoError(t, err)
	assert.Same(t, things, typ)

	_, err = reg.TypeOf(&struct{}{})
	assert.True(t, errors.Is(err, ErrUnknownType))

	ident, err := reg.Identifier(&author{ID: "9"})
	require.NoError(t, err)
	assert.Equal(t, japi.Identifier{Type: "authors", ID: "9"}, ident)

	ident, err = reg.Identifier(japi.Identifier{Type: "x", ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "x", ident.Type)
}

func TestRegistry_Duplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(articleType()))

	err := reg.Register(articleType())
	assert.True(t, errors.Is(err, ErrDuplicateType))

	sameGoType := NewType[*article]("posts", func(a *article) string { return a.ID }, nil)
	err = reg.Register(sameGoType)
	assert.True(t, errors.Is(err, ErrDuplicateType))

	assert.Panics(t, func() { reg.MustRegister(articleType()) })
}

func TestIsNil(t *testing.T) {
	var a *author
	var m map[string]any
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(a))
	assert.True(t, IsNil(m))
	assert.False(t, IsNil(&author{}))
	assert.False(t, IsNil(0))
}

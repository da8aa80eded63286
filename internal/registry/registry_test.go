package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/internal/diag"
	"github.com/binderylabs/bindery/internal/model"
	"github.com/binderylabs/bindery/internal/platform"
)

const vectorModel = `
library: coll
headers: [coll/vector.h]
root:
  classes:
    - name: Vector
      template_params: [T]
      movable: true
      constructors:
        - {}
      methods:
        - {name: size, returns: int, const: true}
        - name: at
          const: true
          params:
            - {name: index, type: int}
          returns: const T &
        - name: push
          params:
            - {name: value, type: const T &}
    - name: Window
      methods:
        - {name: points, returns: 'Vector<int>', const: true}
        - name: merge
          params:
            - {name: other, type: 'const Vector<int> &'}
`

func testIndex(t *testing.T, src string) *model.Index {
	t.Helper()
	m, err := model.Parse([]byte(src))
	require.NoError(t, err)
	ix, diags := model.Validate(m, nil)
	require.False(t, diags.HasFatal(), "unexpected: %v", diags.All())
	return ix
}

func testProfile(t *testing.T) *platform.Profile {
	t.Helper()
	p, err := platform.Builtin("linux-amd64")
	require.NoError(t, err)
	return p
}

func TestRequestCreatesOnce(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	generic := ix.LookupClass(nil, "Vector")
	require.NotNil(t, generic)

	a, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int")})
	require.NoError(t, err)
	b, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int")})
	require.NoError(t, err)
	assert.Same(t, a, b, "identical requests must share one allocation")
	assert.Equal(t, 1, reg.Len())

	c, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("double")})
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())
}

func TestRequestNormalizesArguments(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	generic := ix.LookupClass(nil, "Vector")

	// int32_t is int on linux-amd64, so the two requests name the same
	// C++ instantiation.
	a, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int32_t")})
	require.NoError(t, err)
	b, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int")})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "Vector<int>", a.CppName())
}

func TestRequestArityMismatch(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	generic := ix.LookupClass(nil, "Vector")

	_, err := reg.Request(generic, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 arguments for 1 parameters")
}

func TestSubstitution(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	generic := ix.LookupClass(nil, "Vector")

	in, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int")})
	require.NoError(t, err)

	concrete := in.Concrete
	require.Len(t, concrete.Methods, 3)
	assert.Equal(t, "const int &", concrete.Methods[1].Returns.String(), "T substituted in return")
	assert.Equal(t, "const int &", concrete.Methods[2].Params[0].Type.String(), "T substituted in param")
	assert.True(t, concrete.Movable)
	assert.Empty(t, concrete.TemplateParams)

	// The generic declaration must stay untouched.
	assert.Equal(t, "const T &", generic.Methods[1].Returns.String())
}

func TestDiscoverWalksSignatures(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	diags := &diag.List{}

	Discover(ix, reg, diags)
	require.False(t, diags.HasFatal(), "unexpected: %v", diags.All())

	// Window::points and Window::merge both name Vector<int>; one
	// allocation serves both call sites.
	require.Equal(t, 1, reg.Len())
	assert.Equal(t, "Vector<int>", reg.Instances()[0].CppName())
}

func TestConcurrentRequestsShareAllocation(t *testing.T) {
	ix := testIndex(t, vectorModel)
	reg := New(testProfile(t))
	generic := ix.LookupClass(nil, "Vector")

	var wg sync.WaitGroup
	got := make([]*Instance, 16)
	for i := range got {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			in, err := reg.Request(generic, []model.TypeRef{model.MustParseTypeRef("int")})
			if err == nil {
				got[slot] = in
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	for _, in := range got {
		assert.Same(t, got[0], in)
	}
}

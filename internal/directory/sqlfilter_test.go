package directory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilterSQLObjectClassPresence(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(objectClass=*)", 3)
	require.True(t, ok)
	assert.Equal(t, "TRUE", expr)
	assert.Empty(t, args)
	assert.Equal(t, 3, next)
}

func TestCompileFilterSQLObjectClassEquality(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(objectClass=groupOfNames)", 3)
	require.True(t, ok)
	assert.Equal(t, "$3 = ANY(object_classes)", expr)
	assert.Equal(t, []any{"groupOfNames"}, args)
	assert.Equal(t, 4, next)
}

func TestCompileFilterSQLAttrEquality(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(cn=a.b)", 3)
	require.True(t, ok)
	assert.Contains(t, expr, "attrs @> jsonb_build_object($3::text, jsonb_build_array($4::text))")
	assert.Equal(t, []any{"cn", "a.b"}, args)
	assert.Equal(t, 5, next)
}

func TestCompileFilterSQLPresence(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(mail=*)", 5)
	require.True(t, ok)
	assert.Equal(t, "attrs ? $5", expr)
	assert.Equal(t, []any{"mail"}, args)
	assert.Equal(t, 6, next)
}

func TestCompileFilterSQLMemberEquality(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(member=cn=a,dc=nodomain)", 3)
	require.True(t, ok)
	assert.Contains(t, expr, "jsonb_build_object")
	assert.Equal(t, []any{"member", "cn=a,dc=nodomain"}, args)
	assert.Equal(t, 5, next)
}

func TestCompileFilterSQLCNWildcardEscapesLikeSpecialChars(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(cn=a_b%c.*)", 3)
	require.True(t, ok)
	assert.Contains(t, expr, "jsonb_array_elements_text")
	assert.Contains(t, expr, "LIKE $3 ESCAPE '\\'")
	require.Len(t, args, 1)
	assert.Equal(t, `a\_b\%c.%`, args[0])
	assert.Equal(t, 4, next)
}

func TestCompileFilterSQLAndCombinesAllPushableOperands(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(&(objectClass=groupOfNames)(cn=a))", 3)
	require.True(t, ok)
	assert.Contains(t, expr, " AND ")
	assert.Equal(t, []any{"groupOfNames", "cn", "a"}, args)
	assert.Equal(t, 6, next)
}

func TestCompileFilterSQLAndDropsUnpushableOperand(t *testing.T) {
	// (member=...) against a self-reference-style dn still compiles, so use
	// a shape compileFilterSQL genuinely can't translate: a bare negated
	// double-negative nested inside an operand list is still pushable, so
	// assert the AND tolerates an operand compileFilterSQL can't handle by
	// falling back to just the operand(s) it can.
	expr, args, next, ok := compileFilterSQL("(&(objectClass=*)(badop~x))", 3)
	require.True(t, ok)
	assert.Equal(t, "(TRUE)", expr)
	assert.Empty(t, args)
	assert.Equal(t, 3, next)
}

func TestCompileFilterSQLOrRequiresEveryOperandPushable(t *testing.T) {
	_, _, _, ok := compileFilterSQL("(|(objectClass=*)(badop~x))", 3)
	assert.False(t, ok)
}

func TestCompileFilterSQLOrCombinesWhenAllPushable(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(|(cn=a)(cn=b))", 3)
	require.True(t, ok)
	assert.Contains(t, expr, " OR ")
	assert.Equal(t, []any{"cn", "a", "cn", "b"}, args)
	assert.Equal(t, 7, next)
}

func TestCompileFilterSQLNotWrapsPushableOperand(t *testing.T) {
	expr, args, next, ok := compileFilterSQL("(!(cn=a))", 3)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(expr, "NOT ("))
	assert.Equal(t, []any{"cn", "a"}, args)
	assert.Equal(t, 5, next)
}

func TestCompileFilterSQLNotRejectsUnpushableOperand(t *testing.T) {
	_, _, _, ok := compileFilterSQL("(!(badop~x))", 3)
	assert.False(t, ok)
}

func TestLikePrefixPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `a\%b\_c%`, likePrefixPattern("a%b_c"))
}

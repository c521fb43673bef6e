package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const brokenOneToOneSchema = `model Profile {
  id String @id @default(uuid())
  bio String?
  user AppUser @relation(fields: [userId], references: [id])
  userId String
}

model AppUser {
  id String @id @default(uuid())
  email String @unique
  profile Profile
}`

func TestSanitizeBrokenOneToOne(t *testing.T) {
	out, actions := Sanitize(brokenOneToOneSchema)

	require.Len(t, actionsByRule(actions, "broken-one-to-one"), 1)
	require.NotContains(t, out, "@relation")
	require.Contains(t, out, "user AppUser?")

	// only the repaired lines change
	require.Contains(t, out, "  id String @id @default(uuid())")
	require.Contains(t, out, "  email String @unique")
	require.Contains(t, out, "  bio String?")
}

func TestSanitizeKeepsValidRelations(t *testing.T) {
	schema := `model Profile {
  id String @id @default(uuid())
  user AppUser @relation(fields: [userId], references: [id])
  userId String @unique
}

model AppUser {
  id String @id @default(uuid())
  profile Profile
}`
	out, actions := Sanitize(schema)
	require.Empty(t, actionsByRule(actions, "broken-one-to-one"))
	require.Contains(t, out, "@relation(fields: [userId], references: [id])")
}

func TestSanitizeKeepsOneToManyRelations(t *testing.T) {
	schema := `model Post {
  id String @id @default(uuid())
  author Author @relation(fields: [authorId], references: [id])
  authorId String
}

model Author {
  id String @id @default(uuid())
  posts Post[]
}`
	out, actions := Sanitize(schema)
	require.Empty(t, actionsByRule(actions, "broken-one-to-one"))
	require.Contains(t, out, "author Author @relation(fields: [authorId], references: [id])")
	// the FK column still picks up rule 2
	require.Contains(t, out, "authorId String?")
}

func TestSanitizeOptionalForeignKeyKeepsUnique(t *testing.T) {
	schema := `model Invoice {
  id String @id @default(uuid())
  orderId String @unique
  legacy_id String
}`
	out, actions := Sanitize(schema)
	require.Len(t, actionsByRule(actions, "optional-foreign-key"), 2)
	require.Contains(t, out, "orderId String? @unique")
	require.Contains(t, out, "legacy_id String?")
}

func TestSanitizeRestoresOptionalIdentity(t *testing.T) {
	schema := `model Session {
  tokenId String? @id
  expiresAt DateTime
}`
	out, actions := Sanitize(schema)
	require.Len(t, actionsByRule(actions, "restore-identity"), 1)
	require.Contains(t, out, "tokenId String @id")
	require.NotContains(t, out, "String? @id")
}

func TestSanitizeIdempotent(t *testing.T) {
	once, _ := Sanitize(brokenOneToOneSchema)
	twice, actions := Sanitize(once)
	require.Equal(t, once, twice)
	require.Empty(t, actions)
}

func TestSanitizeMergedEndToEnd(t *testing.T) {
	merged, err := Merge(businessSchema())
	require.NoError(t, err)

	before := merged.Text
	SanitizeMerged(merged)

	// Post.authorId is a plain FK on a one-to-many: rule 2 loosens it, the
	// relation binding survives, and the system block is untouched apart
	// from its own FK columns.
	require.Contains(t, merged.Text, "authorId String?")
	require.Contains(t, merged.Text, "@relation(fields: [authorId], references: [id])")
	require.Contains(t, merged.Text, SystemDelimiter)
	require.Equal(t, strings.Count(before, "model "), strings.Count(merged.Text, "model "))
}

func actionsByRule(actions []Action, rule string) []Action {
	var out []Action
	for _, a := range actions {
		if a.Rule == rule {
			out = append(out, a)
		}
	}
	return out
}

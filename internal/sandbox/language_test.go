package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLanguage_NeedsCompilation(t *testing.T) {
	require.True(t, LanguageCpp.NeedsCompilation())
	require.True(t, LanguageRust.NeedsCompilation())
	require.True(t, LanguageGo.NeedsCompilation())
	require.True(t, LanguageJava.NeedsCompilation())
	require.False(t, LanguagePython.NeedsCompilation())
}

func TestArtifactFilename(t *testing.T) {
	name, err := ArtifactFilename(LanguageJava)
	require.NoError(t, err)
	require.Equal(t, "Main.class", name)

	name, err = ArtifactFilename(LanguagePython)
	require.NoError(t, err)
	require.Equal(t, "main.py", name)

	_, err = ArtifactFilename(Language("brainfuck"))
	require.Error(t, err)
}

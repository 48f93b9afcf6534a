package sandbox

import "fmt"

// Language is one of the five source languages the platform can compile
// and run. Adding a new one means adding an entry to languageSpecs below
// and a compiler image to the deployment's registry; nothing else in this
// package is language-aware.
type Language string

const (
	LanguageCpp    Language = "cpp"
	LanguageRust   Language = "rust"
	LanguageGo     Language = "go"
	LanguageJava   Language = "java"
	LanguagePython Language = "python"
)

// languageSpec is everything the compiler and the match sandbox need to
// know to turn a blob of source into a running process: where to write it,
// how to build it (empty BuildCommand means no compilation step), how to
// run the artifact, and the artifact's path once built.
type languageSpec struct {
	SourceFilename string
	BuildCommand   []string // argv, empty if NeedsCompilation is false
	RunCommand     []string
	Artifact       string // path of the compiled artifact inside the workspace
}

var languageSpecs = map[Language]languageSpec{
	LanguageCpp: {
		SourceFilename: "main.cc",
		BuildCommand:   []string{"g++", "-std=c++23", "-O2", "-o", "main", "main.cc"},
		RunCommand:     []string{"./main"},
		Artifact:       "main",
	},
	LanguageRust: {
		SourceFilename: "main.rs",
		BuildCommand:   []string{"rustc", "--edition=2021", "-O", "-o", "main", "main.rs"},
		RunCommand:     []string{"./main"},
		Artifact:       "main",
	},
	LanguageGo: {
		SourceFilename: "main.go",
		BuildCommand:   []string{"go", "build", "-o", "main", "main.go"},
		RunCommand:     []string{"./main"},
		Artifact:       "main",
	},
	LanguageJava: {
		SourceFilename: "Main.java",
		BuildCommand:   []string{"javac", "Main.java"},
		RunCommand:     []string{"java", "Main"},
		Artifact:       "Main.class",
	},
	LanguagePython: {
		SourceFilename: "main.py",
		BuildCommand:   nil,
		RunCommand:     []string{"python3", "main.py"},
		Artifact:       "main.py",
	},
}

// NeedsCompilation reports whether l has a build step at all.
func (l Language) NeedsCompilation() bool {
	spec, ok := languageSpecs[l]
	return ok && len(spec.BuildCommand) > 0
}

func specFor(l Language) (languageSpec, error) {
	spec, ok := languageSpecs[l]
	if !ok {
		return languageSpec{}, fmt.Errorf("unsupported language %q", l)
	}
	return spec, nil
}

// ArtifactFilename returns the workspace-relative path of l's compiled
// artifact (the source file itself, for interpreted languages).
func ArtifactFilename(l Language) (string, error) {
	spec, err := specFor(l)
	if err != nil {
		return "", err
	}
	return spec.Artifact, nil
}

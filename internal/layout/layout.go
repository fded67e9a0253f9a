package layout

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a file name or override would escape the
// models root.
var ErrUnsafePath = errors.New("layout: unsafe destination path")

// ModelType is a registry-declared artifact category.
type ModelType string

const (
	TypeCheckpoint       ModelType = "checkpoint"
	TypeLoRA             ModelType = "lora"
	TypeVAE              ModelType = "vae"
	TypeControlNet       ModelType = "controlnet"
	TypeTextualInversion ModelType = "textual-inversion"
	TypeUnknown          ModelType = "unknown"
)

// subdirs maps each model type to its destination subdirectory.
// Unrecognized types land in "other" so provisioning never blocks on a
// type the registry added after this table was written.
var subdirs = map[ModelType]string{
	TypeCheckpoint:       "checkpoints",
	TypeLoRA:             "loras",
	TypeVAE:              "vae",
	TypeControlNet:       "controlnet",
	TypeTextualInversion: "embeddings",
}

const fallbackSubdir = "other"

// ParseModelType normalizes a registry type string into a ModelType.
// Matching ignores case and separators, so "LORA", "TextualInversion" and
// "textual_inversion" all resolve.
func ParseModelType(s string) ModelType {
	norm := strings.ToLower(s)
	norm = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, norm)

	switch norm {
	case "checkpoint":
		return TypeCheckpoint
	case "lora":
		return TypeLoRA
	case "vae":
		return TypeVAE
	case "controlnet":
		return TypeControlNet
	case "textualinversion", "embedding":
		return TypeTextualInversion
	default:
		return TypeUnknown
	}
}

// Subdir returns the destination subdirectory for a model type.
func Subdir(t ModelType) string {
	if sub, ok := subdirs[t]; ok {
		return sub
	}
	return fallbackSubdir
}

// SanitizeFileName strips directory components and traversal sequences
// from a file name. Returns ErrUnsafePath when nothing usable remains.
func SanitizeFileName(name string) (string, error) {
	// Keep only the last path element, tolerating both separators.
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." {
		return "", ErrUnsafePath
	}
	return name, nil
}

// Resolve computes the destination path for an artifact.
//
// When override is non-empty it names a subdirectory relative to root,
// bypassing the type table; it must not escape root. Otherwise the type
// table chooses the subdirectory. fileName is sanitized in both cases.
func Resolve(root string, modelType ModelType, fileName, override string) (string, error) {
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}

	sub := Subdir(modelType)
	if override != "" {
		sub = filepath.Clean(override)
		if filepath.IsAbs(sub) || sub == ".." || strings.HasPrefix(sub, ".."+string(filepath.Separator)) {
			return "", ErrUnsafePath
		}
	}

	return filepath.Join(root, sub, name), nil
}

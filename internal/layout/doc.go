// Package layout maps resolved model metadata to destination paths inside
// the models directory.
//
// Each model type has a fixed subdirectory (checkpoints, loras, vae,
// controlnet, embeddings); unrecognized types fall back to "other". File
// names are sanitized so a registry-supplied name can never traverse
// outside the models root.
package layout

// Package config holds two layers of settings. User-level settings live at
// ~/.capreg/config.yaml and are read and written with Get and Set. Corpus
// settings live in capreg.yaml at the corpus root and describe where each
// component type's documents are, how references resolve, and how the index
// cache behaves.
package config

// Package config parses the on-disk database configuration: the store
// path and open flags, the extra schema attributes to register at open
// time on top of the well-known set, and the logging level. Config files decode
// as YAML via gopkg.in/yaml.v3 into a plain struct, so adding a field
// is a matter of extending the struct rather than a hand-rolled
// tokenizer.
package config

// Package output renders CLI results as tables, JSON or YAML.
//
// Tables are built from a Table value, from types implementing Tabler,
// or by reflection over structs and slices of structs. Struct fields are
// named by their json tag; a `table:"-"` tag hides a field and
// `table:"wide"` shows it only in wide mode.
package output

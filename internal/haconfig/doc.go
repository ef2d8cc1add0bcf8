// Package haconfig loads Home Assistant style configuration trees.
//
// Source files use YAML extended with custom tags. Before parsing, comment
// lines are dropped, the env_var and input tags are neutralised, include
// directives (!include, !include_dir_list, ...) are cut out and remembered,
// and !secret references are replaced with values from the nearest
// secrets.yaml. Each include target is then loaded recursively and attached
// to the including file under the reserved "additional" key, so a setting
// buried anywhere in the host configuration can be found with Find.
package haconfig

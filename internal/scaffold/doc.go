// Package scaffold provides starter project templates.
//
// This package contains embedded templates for laying down new Trellis
// application sources next to the trellis.json that 'trellis-client init'
// writes.
//
// # Available Templates
//
//   - starter: Single-file counter app
//   - module: Package layout with pages split across files
//
// # Usage
//
//	tmpl, err := scaffold.Get("starter")
//	if err != nil {
//	    return err
//	}
//	if err := tmpl.Create(projectDir, config); err != nil {
//	    return err
//	}
//
// # Template Variables
//
// Templates support variable substitution:
//
//	{{.ProjectName}}     - Name of the project
package scaffold

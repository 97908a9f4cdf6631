package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emmapowers/trellis-sub001/internal/config"
	"github.com/emmapowers/trellis-sub001/internal/errors"
	"github.com/emmapowers/trellis-sub001/internal/scaffold"
)

func initCmd() *cobra.Command {
	var (
		name     string
		url      string
		tmplName string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default trellis.json",
		Long: `Write a default trellis.json into the given directory.

The file records the server address, wire codec, routing mode, theme
and worker settings that 'trellis-client run' and 'trellis-client
connect' read.

Pass --template to also lay down starter application sources next to
the configuration (` + strings.Join(scaffold.List(), ", ") + `).

Examples:
  trellis-client init
  trellis-client init my-app --url=wss://app.example.com/ws
  trellis-client init my-app --template=starter
  trellis-client init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, name, url, tmplName, force)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (default: directory name)")
	cmd.Flags().StringVarP(&url, "url", "u", "", "Server URL to record")
	cmd.Flags().StringVarP(&tmplName, "template", "t", "", "Starter sources to generate ("+strings.Join(scaffold.List(), ", ")+")")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing trellis.json")

	return cmd
}

func runInit(dir, name, url, tmplName string, force bool) error {
	// Resolve the template first so a typo doesn't leave a half-written
	// project behind.
	var tmpl *scaffold.Template
	if tmplName != "" {
		var err error
		tmpl, err = scaffold.Get(tmplName)
		if err != nil {
			return err
		}
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	path := filepath.Join(absDir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New("T505").
			WithDetail("'" + path + "' already exists").
			WithSuggestion("Pass --force to overwrite it")
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return err
	}

	cfg := config.New()
	cfg.Name = name
	if cfg.Name == "" {
		cfg.Name = filepath.Base(absDir)
	}
	if url != "" {
		cfg.Server.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	success("Created %s", path)

	if tmpl != nil {
		if err := tmpl.Create(absDir, scaffold.Config{ProjectName: cfg.Name}); err != nil {
			return err
		}
		success("Generated %s sources", tmpl.Name)
		fmt.Println()
		fmt.Println("  To run your application:")
		fmt.Println()
		if dir != "." {
			fmt.Printf("    cd %s\n", dir)
		}
		fmt.Printf("    trellis-client run %s --watch\n", tmpl.Entry)
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println("  To attach to your application:")
	fmt.Println()
	if dir != "." {
		fmt.Printf("    cd %s\n", dir)
	}
	fmt.Println("    trellis-client connect")
	fmt.Println()

	return nil
}

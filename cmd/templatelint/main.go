package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/templates"
)

type violation struct {
	file    string
	id      string
	message string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	violations, err := lint(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "templatelint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "templatelint: invalid templates")
		for _, v := range violations {
			if v.id != "" {
				fmt.Fprintf(os.Stderr, "  %s %s (%s)\n", v.file, v.message, v.id)
				continue
			}
			fmt.Fprintf(os.Stderr, "  %s %s\n", v.file, v.message)
		}
		os.Exit(1)
	}
}

// lint loads every .html file under targets through the template loader
// and reports load failures and duplicate ids.
func lint(targets []string) ([]violation, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".html" {
				files = append(files, target)
			}
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || d.Name() == "vendor" || d.Name() == "node_modules") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == ".html" {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	var violations []violation
	seen := make(map[string]string)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		c, err := templates.ParseFile(data)
		if err != nil {
			violations = append(violations, violation{file: path, message: err.Error()})
			continue
		}
		id := c.Template.ID
		if first, dup := seen[id]; dup {
			violations = append(violations, violation{file: path, id: id, message: "duplicate template id, first defined in " + first})
			continue
		}
		seen[id] = path
	}
	return violations, nil
}

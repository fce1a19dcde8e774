package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/campus/portal/internal/apiclient"
	"github.com/campus/portal/internal/resource"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var filter, sortBy string
	var params []string

	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "List the records of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parsePairs(params, "--param")
			if err != nil {
				return err
			}
			store, err := a.store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := store.List(cmd.Context(), query); err != nil {
				return err
			}

			items := store.Items()
			if filter != "" {
				field, substr, ok := strings.Cut(filter, "=")
				if !ok {
					return fmt.Errorf("--filter must be field=substring, got %q", filter)
				}
				items = resource.FilterItems(items, field, substr)
			}
			if sortBy != "" {
				field, dirName, _ := strings.Cut(sortBy, ":")
				dir, err := resource.ParseDirection(dirName)
				if err != nil {
					return err
				}
				items = resource.SortItems(items, field, dir)
			}
			return a.render(cmd.OutOrStdout(), items)
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter, "filter", "", "Keep records whose field contains a substring: field=substr (empty field searches all)")
	f.StringVar(&sortBy, "sort", "", "Sort by field, optionally :asc or :desc")
	f.StringArrayVar(&params, "param", nil, "Query parameter k=v sent with the request (repeatable)")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <resource> <id>",
		Short: "Fetch a single record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			item, err := store.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), item)
		},
	}
}

// bodyFlags are the record payload flags shared by create and update.
type bodyFlags struct {
	data  string
	files []string
}

func (b *bodyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.data, "data", "", "Record fields as a JSON object, or @path to read them from a file")
	cmd.Flags().StringArrayVar(&b.files, "file", nil, "Attach a file as field=path; sends multipart/form-data (repeatable)")
}

// item assembles the request body. Attached files turn it into a multipart
// upload.
func (b *bodyFlags) item() (resource.Item, error) {
	item := resource.Item{}
	if b.data != "" {
		raw := []byte(b.data)
		if strings.HasPrefix(b.data, "@") {
			var err error
			if raw, err = os.ReadFile(strings.TrimPrefix(b.data, "@")); err != nil {
				return nil, fmt.Errorf("reading --data file: %w", err)
			}
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}

	files, err := parsePairs(b.files, "--file")
	if err != nil {
		return nil, err
	}
	for field := range files {
		path := files.Get(field)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading --file %s: %w", field, err)
		}
		item[field] = apiclient.NewFile(filepath.Base(path), data)
	}
	if len(item) == 0 {
		return nil, fmt.Errorf("nothing to send: pass --data or --file")
	}
	return item, nil
}

func newCreateCmd(a *app) *cobra.Command {
	var body bodyFlags
	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := body.item()
			if err != nil {
				return err
			}
			store, err := a.store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			created, err := store.Create(cmd.Context(), item)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), created)
		},
	}
	body.register(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var body bodyFlags
	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Partially update a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := body.item()
			if err != nil {
				return err
			}
			store, err := a.store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updated, err := store.Update(cmd.Context(), args[1], patch)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), updated)
		},
	}
	body.register(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s.\n", store.Resource(), args[1])
			return nil
		},
	}
}

// parsePairs reads repeated k=v flag values.
func parsePairs(pairs []string, flag string) (url.Values, error) {
	values := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%s must be key=value, got %q", flag, p)
		}
		values.Add(k, v)
	}
	return values, nil
}

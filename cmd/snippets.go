package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/foomo/snippetserver/pkg/repo"
	"github.com/foomo/snippetserver/snippet"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewSnippetCommands returns the commands operating on a store directly
func NewSnippetCommands() []*cobra.Command {
	return []*cobra.Command{
		newListCommand(),
		newGetCommand(),
		newSearchCommand(),
		newCreateCommand(),
		newUpdateCommand(),
		newDeleteCommand(),
		newDuplicateCommand(),
		newImportCommand(),
		newExportCommand(),
		newCompletionsCommand(),
		newFoldersCommand(),
		newHistoryCommand(),
		newRestoreCommand(),
	}
}

func newListCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "list",
		Short: "List all snippets in insertion order",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		return printJSON(cmd.OutOrStdout(), r.List())
	})
}

func newGetCommand() *cobra.Command {
	var text bool
	cmd := newRepoCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a single snippet",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		s, ok := r.Get(args[0])
		if !ok {
			return errors.Wrapf(repo.ErrNotFound, "snippet %q", args[0])
		}
		if text {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), s.Text())
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	})
	cmd.Flags().BoolVar(&text, "text", false, "Print the body only")
	return cmd
}

func newSearchCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Search snippets by name, description and tags",
		Args:  cobra.MaximumNArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		var query string
		if len(args) > 0 {
			query = args[0]
		}
		return printJSON(cmd.OutOrStdout(), r.Search(query))
	})
}

func newCreateCommand() *cobra.Command {
	cmd := newRepoCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a snippet",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		s, err := r.Create(cmd.Context(), inputFromPatch(patch))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	})
	addSnippetFlags(cmd.Flags())
	return cmd
}

func newUpdateCommand() *cobra.Command {
	cmd := newRepoCommand(&cobra.Command{
		Use:   "update <id>",
		Short: "Update the given fields of a snippet",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := r.Update(cmd.Context(), args[0], patch); err != nil {
			return err
		}
		s, _ := r.Get(args[0])
		return printJSON(cmd.OutOrStdout(), s)
	})
	addSnippetFlags(cmd.Flags())
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snippet",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		return r.Delete(cmd.Context(), args[0])
	})
}

func newDuplicateCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a snippet",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		s, err := r.Duplicate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	})
}

func newImportCommand() *cobra.Command {
	v := newViper()
	cmd := newRepoCommandWithViper(v, &cobra.Command{
		Use:   "import <file|->",
		Short: "Append snippets from a json or yaml file",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		var (
			n   int
			err error
		)
		if args[0] == "-" {
			format, formatErr := repo.ParseFormat(formatFlag(v))
			if formatErr != nil {
				return formatErr
			}
			data, readErr := io.ReadAll(cmd.InOrStdin())
			if readErr != nil {
				return errors.Wrap(readErr, "failed to read stdin")
			}
			n, err = r.Import(cmd.Context(), data, format)
		} else {
			files, key, filesErr := localFiles(args[0])
			if filesErr != nil {
				return filesErr
			}
			n, err = r.ImportFile(cmd.Context(), files, key)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d snippets\n", n)
		return err
	})
	addFormatFlag(cmd.Flags(), v)
	return cmd
}

func newExportCommand() *cobra.Command {
	v := newViper()
	cmd := newRepoCommandWithViper(v, &cobra.Command{
		Use:   "export [file]",
		Short: "Write all snippets as json or yaml",
		Args:  cobra.MaximumNArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		if len(args) == 0 {
			format, err := repo.ParseFormat(formatFlag(v))
			if err != nil {
				return err
			}
			data, err := r.Export(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		files, key, err := localFiles(args[0])
		if err != nil {
			return err
		}
		return r.ExportFile(cmd.Context(), files, key)
	})
	addFormatFlag(cmd.Flags(), v)
	return cmd
}

func newCompletionsCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "completions <language>",
		Short: "List snippets offered for a language",
		Args:  cobra.ExactArgs(1),
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		return printJSON(cmd.OutOrStdout(), r.Completions(args[0]))
	})
}

func newFoldersCommand() *cobra.Command {
	return newRepoCommand(&cobra.Command{
		Use:   "folders",
		Short: "List snippets grouped by folder",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, r *repo.Repo) error {
		return printJSON(cmd.OutOrStdout(), r.Folders())
	})
}

func newHistoryCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), v, func(history *repo.History) error {
				versions, err := history.Versions(cmd.Context(), storeKeyFlag(v))
				if err != nil {
					return errors.Wrap(err, "failed to list backups")
				}
				for _, version := range versions {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), version); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	addRepoFlags(cmd.Flags(), v)
	return cmd
}

func newRestoreCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "restore <version>",
		Short: "Replace all snippets with a backup listed by history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withHistory(ctx, v, func(history *repo.History) error {
				versions, err := history.Versions(ctx, storeKeyFlag(v))
				if err != nil {
					return errors.Wrap(err, "failed to list backups")
				}
				if !slices.Contains(versions, args[0]) {
					return errors.Errorf("unknown backup %q", args[0])
				}
				data, err := history.ReadVersion(ctx, args[0])
				if err != nil {
					return errors.Wrapf(err, "failed to read backup %q", args[0])
				}

				r, err := repo.New(ctx, zap.L().Named("inst.repo"), history, repo.WithKey(storeKeyFlag(v)))
				if err != nil {
					return err
				}
				n, err := r.Restore(ctx, data)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %d snippets\n", n)
				return err
			})
		},
	}
	addRepoFlags(cmd.Flags(), v)
	return cmd
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

type repoRunFn func(cmd *cobra.Command, args []string, r *repo.Repo) error

func newRepoCommand(cmd *cobra.Command, run repoRunFn) *cobra.Command {
	return newRepoCommandWithViper(newViper(), cmd, run)
}

// newRepoCommandWithViper opens the store configured by the repo flags around run
func newRepoCommandWithViper(v *viper.Viper, cmd *cobra.Command, run repoRunFn) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		l := zap.L().Named("inst.repo")
		r, err := newRepo(cmd.Context(), v, l)
		if err != nil {
			return err
		}
		defer func() {
			if err := r.Close(); err != nil {
				l.Warn("failed to close repo", zap.Error(err))
			}
		}()
		return run(cmd, args, r)
	}
	addRepoFlags(cmd.Flags(), v)
	return cmd
}

// withHistory runs fn with the versioned backend, which only exists for
// filesystem and blob storage
func withHistory(ctx context.Context, v *viper.Viper, fn func(history *repo.History) error) error {
	l := zap.L().Named("inst.repo")
	backend, err := createBackend(ctx, v, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			l.Warn("failed to close backend", zap.Error(err))
		}
	}()

	history, ok := backend.(*repo.History)
	if !ok {
		return errors.Errorf("storage type %q keeps no backups", storageTypeFlag(v))
	}
	return fn(history)
}

func addSnippetFlags(flags *pflag.FlagSet) {
	flags.String("name", "", "Snippet name")
	flags.String("description", "", "Snippet description")
	flags.String("body", "", "Snippet body, lines separated by newlines")
	flags.String("language", snippet.PlainText, "Language identifier")
	flags.StringSlice("tag", nil, "Tag, may be repeated")
	flags.String("folder", snippet.DefaultFolder, "Folder label")
}

// patchFromFlags collects the snippet flags, defaults are taken for unchanged flags
// on create and left out on update
func patchFromFlags(cmd *cobra.Command) (snippet.Patch, error) {
	var (
		p     snippet.Patch
		flags = cmd.Flags()
		isNew = cmd.Name() == "create"
	)
	for _, name := range []string{"name", "description", "language", "folder"} {
		if !isNew && !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return p, err
		}
		switch name {
		case "name":
			p.Name = &value
		case "description":
			p.Description = &value
		case "language":
			p.Language = &value
		case "folder":
			p.Folder = &value
		}
	}
	if isNew || flags.Changed("body") {
		value, err := flags.GetString("body")
		if err != nil {
			return p, err
		}
		body := []string{}
		if value != "" {
			body = strings.Split(value, "\n")
		}
		p.Body = &body
	}
	if isNew || flags.Changed("tag") {
		tags, err := flags.GetStringSlice("tag")
		if err != nil {
			return p, err
		}
		p.Tags = &tags
	}
	return p, nil
}

func inputFromPatch(p snippet.Patch) snippet.Input {
	var in snippet.Input
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Body != nil {
		in.Body = *p.Body
	}
	if p.Language != nil {
		in.Language = *p.Language
	}
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.Folder != nil {
		in.Folder = *p.Folder
	}
	return in
}

// localFiles exposes the directory of path as import/export files
func localFiles(path string) (repo.Files, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to resolve %q", path)
	}
	files, err := repo.NewFilesystemStorage(filepath.Dir(abs))
	if err != nil {
		return nil, "", err
	}
	return files, filepath.Base(abs), nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

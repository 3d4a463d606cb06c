package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/cmdbot/internal/command"
	"github.com/hyperifyio/cmdbot/internal/store"
)

func newCommandsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Administer stored commands without a chat connection",
	}
	cmd.AddCommand(newCommandsListCommand(opts))
	cmd.AddCommand(newCommandsAddCommand(opts))
	cmd.AddCommand(newCommandsRemoveCommand(opts))
	cmd.AddCommand(newCommandsImportCommand(opts))
	return cmd
}

// withApp composes the app against the configured store for one admin
// operation. Logs go to stderr so stdout stays clean for output.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(cmd.Context(), a)
}

func newCommandsListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				recs, err := a.store.FindAll(ctx)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), a.natives, recs)
			})
		},
	}
}

func printRecords(w io.Writer, n *command.Natives, recs []store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tSTATUS\tDESCRIPTION")
	for _, rec := range recs {
		kind, status := "-", "ok"
		if d, err := command.FromRecord(rec); err != nil {
			status = "misconfigured"
		} else {
			kind = d.Kind().String()
		}
		if n.Has(rec.Name) {
			status = "shadowed by built-in"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Name, kind, status, rec.Description)
	}
	return tw.Flush()
}

func newCommandsAddCommand(opts *rootOptions) *cobra.Command {
	var script, template, description string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a stored command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (script == "") == (template == "") {
				return errors.New("exactly one of --script or --template is required")
			}
			rec := store.Record{Name: args[0], Script: script, Template: template, Description: description}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.checkRecord(rec); err != nil {
					return err
				}
				if err := a.store.Upsert(ctx, rec); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "command %q added\n", rec.Name)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "JavaScript body")
	cmd.Flags().StringVar(&template, "template", "", "reply text; {user} is replaced by the invoker's mention")
	cmd.Flags().StringVar(&description, "description", "", "shown by !!help")
	return cmd
}

func newCommandsRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a stored command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.natives.Has(name) {
					return fmt.Errorf("%q is a built-in command and cannot be changed", name)
				}
				if _, ok, err := a.store.FindByKey(ctx, name); err != nil {
					return err
				} else if !ok {
					return fmt.Errorf("command %q does not exist", name)
				}
				if err := a.store.Delete(ctx, name); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "command %q removed\n", name)
				return err
			})
		},
	}
}

func newCommandsImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert commands from a YAML seed file (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open seed file: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			recs, err := store.LoadYAML(in)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				for _, rec := range recs {
					if err := a.checkRecord(rec); err != nil {
						return err
					}
				}
				n, err := store.Import(ctx, a.store, recs)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d command(s)\n", n)
				return err
			})
		},
	}
}

// checkRecord applies the rules addCommand enforces in chat.
func (a *app) checkRecord(rec store.Record) error {
	if !command.ValidName(rec.Name) {
		return fmt.Errorf("command %q: names may only contain letters", rec.Name)
	}
	if a.natives.Has(rec.Name) {
		return fmt.Errorf("%q is a built-in command and cannot be changed", rec.Name)
	}
	d, err := command.FromRecord(rec)
	if err != nil {
		return err
	}
	if body, ok := d.Body.(command.ScriptBody); ok {
		if err := a.engine.Validate(body.Source); err != nil {
			return fmt.Errorf("command %q: %w", rec.Name, err)
		}
	}
	return nil
}

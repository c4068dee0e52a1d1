package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morezero/hostrpc/internal/session"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Hold a session open and serve the health endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return session.Run(cfg)
		},
	}
}

func newCallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a method and print the response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) > 1 {
				raw = args[1]
			}
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(c context.Context, s *session.Session) error {
				var p interface{}
				if params != nil {
					p = params
				}
				resp, err := s.Client().Call(c, args[0], p)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, resp); err != nil {
					return err
				}
				rpcErr, err := resp.RPCError()
				if err != nil {
					return err
				}
				if rpcErr != nil {
					return rpcErr
				}
				return nil
			})
		},
	}
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Send a JSON array of {method, params} as one batch and print the responses in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			reqs, err := readBatch(in)
			in.Close()
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(c context.Context, s *session.Session) error {
				out, err := s.Client().BatchCall(c, reqs)
				if err != nil {
					return err
				}
				return writeJSON(cmd, out)
			})
		},
	}
}

func newVersionCommand(ctx *commandContext) *cobra.Command {
	var method, field, constraint string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon's version and check it against a constraint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(c context.Context, s *session.Session) error {
				v, err := s.Client().VerifyServerVersion(c, method, field, constraint)
				if v != nil {
					fmt.Fprintln(cmd.OutOrStdout(), v.String())
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&method, "method", "Host.version", "Method reporting the version")
	cmd.Flags().StringVar(&field, "field", "version", "Result member holding the version string")
	cmd.Flags().StringVar(&constraint, "constraint", "*", "Semver constraint the version must satisfy")
	return cmd
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pixnoma/internal/backend"
)

// EnvAuthSecret signs the bearer tokens accepted by serve.
const EnvAuthSecret = "PXN_AUTH_SECRET"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var tokenTTL time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project API over the local store",
		Long: `Serve the project API (POST /api/projects, GET and PATCH /api/projects/{id}) backed by the
configured store. Requests need a bearer token signed with $` + EnvAuthSecret + `;
--token-ttl prints one for the current owner at startup.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			srv := backend.NewServer(e.store, os.Getenv(EnvAuthSecret), e.store.Ping)
			if tokenTTL > 0 {
				tok, err := srv.IssueToken(e.owner, tokenTTL)
				if err != nil {
					return wrap("issue token", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token for %s: %s\n", e.owner, tok)
			}
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return WrapExitError(ExitFailure, "serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 0, "print a bearer token valid for this long")
	return cmd
}

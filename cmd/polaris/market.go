// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"time"

	"code.polarismarkets.io/polaris/admin"
	"code.polarismarkets.io/polaris/config"
	"code.polarismarkets.io/polaris/logging"

	"github.com/spf13/cobra"
)

// adminCallTimeout bounds a single command against the admin socket.
const adminCallTimeout = 10 * time.Second

var (
	marketCloseAt string

	marketCmd = &cobra.Command{
		Use:   "market",
		Short: "Operator commands against a running polaris node",
	}

	marketCreateCmd = &cobra.Command{
		Use:   "create <market-id>",
		Short: "Open a new binary market",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withAdminClient(func(ctx context.Context, cli *admin.Client) error {
				reply, err := cli.CreateMarket(ctx, admin.CreateMarketArgs{
					ID:      args[0],
					CloseAt: marketCloseAt,
				})
				if err != nil {
					return err
				}
				fmt.Printf("market %s created: %v\n", args[0], reply.Created)
				return nil
			})
		},
	}

	marketDepositCmd = &cobra.Command{
		Use:   "deposit <party> <amount>",
		Short: "Credit a party on the collateral ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withAdminClient(func(ctx context.Context, cli *admin.Client) error {
				reply, err := cli.Deposit(ctx, admin.DepositArgs{Party: args[0], Amount: amount})
				if err != nil {
					return err
				}
				fmt.Printf("balance of %s: %d\n", args[0], reply.Balance)
				return nil
			})
		},
	}

	marketWithdrawCmd = &cobra.Command{
		Use:   "withdraw <party> <amount>",
		Short: "Debit a party on the collateral ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withAdminClient(func(ctx context.Context, cli *admin.Client) error {
				reply, err := cli.Withdraw(ctx, admin.WithdrawArgs{Party: args[0], Amount: amount})
				if err != nil {
					return err
				}
				fmt.Printf("balance of %s: %d\n", args[0], reply.Balance)
				return nil
			})
		},
	}

	marketBalanceCmd = &cobra.Command{
		Use:   "balance <party>",
		Short: "Report the collateral balance of a party",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withAdminClient(func(ctx context.Context, cli *admin.Client) error {
				reply, err := cli.Balance(ctx, admin.BalanceArgs{Party: args[0]})
				if err != nil {
					return err
				}
				fmt.Printf("balance of %s: %d\n", args[0], reply.Balance)
				return nil
			})
		},
	}
)

func init() {
	marketCreateCmd.Flags().StringVar(&marketCloseAt, "close-at", "", "RFC3339 timestamp after which the market stops accepting orders")
	marketCmd.AddCommand(marketCreateCmd)
	marketCmd.AddCommand(marketDepositCmd)
	marketCmd.AddCommand(marketWithdrawCmd)
	marketCmd.AddCommand(marketBalanceCmd)
	rootCmd.AddCommand(marketCmd)
}

// withAdminClient loads the node configuration and runs fn against the
// admin socket of the node it describes.
func withAdminClient(fn func(context.Context, *admin.Client) error) error {
	conf, err := config.Read(rootPath)
	if err != nil {
		return fmt.Errorf("unable to read configuration at %s: %w", rootPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminCallTimeout)
	defer cancel()

	cli := admin.NewClient(logging.NewLoggerFromEnv("dev"), conf.Admin)
	return fn(ctx, cli)
}

func parseAmount(raw string) (uint64, error) {
	var amount uint64
	if _, err := fmt.Sscanf(raw, "%d", &amount); err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

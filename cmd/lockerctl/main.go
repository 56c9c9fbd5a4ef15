// Command lockerctl reads a bridge locker's state and sends it signed
// requests.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"gobridgelocker/workers/handlers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL     string
		keyHex     string
		lockerAddr string
		ttl        time.Duration
	)
	c := &client{http: &http.Client{Timeout: 30 * time.Second}}

	root := &cobra.Command{
		Use:          "lockerctl",
		Short:        "Bridge locker client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.api = apiURL
			c.ttl = ttl
			if lockerAddr != "" {
				if !common.IsHexAddress(lockerAddr) {
					return fmt.Errorf("invalid locker address %q", lockerAddr)
				}
				c.locker = common.HexToAddress(lockerAddr)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8000", "Locker API base URL")
	root.PersistentFlags().StringVar(&keyHex, "key", os.Getenv("LOCKER_KEY"), "Hex private key signing write requests (default $LOCKER_KEY)")
	root.PersistentFlags().StringVar(&lockerAddr, "locker", "", "Locker address requests are bound to (read from the API when empty)")
	root.PersistentFlags().DurationVar(&ttl, "ttl", 5*time.Minute, "How long a signed request stays valid")

	// write commands need the key
	signed := func(run func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error)) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(keyHex)
			if err != nil {
				return err
			}
			c.key = key

			body, path, action, err := run(cmd, args)
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := c.post(cmd.Context(), path, action, body, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		}
	}
	read := func(path func(args []string) string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := c.get(cmd.Context(), path(args), &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "state",
			Short: "Show owner, chain id, gateway and custody balance",
			Args:  cobra.NoArgs,
			RunE:  read(func([]string) string { return "/state" }),
		},
		&cobra.Command{
			Use:   "chain-id",
			Short: "Show the internal chain id",
			Args:  cobra.NoArgs,
			RunE:  read(func([]string) string { return "/chain-id" }),
		},
		&cobra.Command{
			Use:   "route [chainId]",
			Short: "Show peers, limit and today's usage for a chain",
			Args:  cobra.ExactArgs(1),
			RunE:  read(func(args []string) string { return "/routes/" + args[0] }),
		},
		&cobra.Command{
			Use:   "transfers [locked|unlocked]",
			Short: "List recorded transfers",
			Args:  cobra.ExactArgs(1),
			RunE:  read(func(args []string) string { return "/transfers/" + args[0] }),
		},
	)

	var fee string
	send := &cobra.Command{
		Use:   "send [destination] [amount] [recipient]",
		Short: "Lock tokens and release them to recipient on the destination chain",
		Args:  cobra.ExactArgs(3),
		RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
			dest, err := parseChainID(args[0])
			if err != nil {
				return nil, "", "", err
			}
			return &handlers.SendRequest{
				Destination:  dest,
				Amount:       args[1],
				Recipient:    args[2],
				ExecutionFee: fee,
			}, "/send", handlers.ActionSend, nil
		}),
	}
	send.Flags().StringVar(&fee, "fee", "", "Execution fee passed to the gateway")

	contract := func(use, short, path, action string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [chainId] [contract]",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
				chain, err := parseChainID(args[0])
				if err != nil {
					return nil, "", "", err
				}
				return &handlers.ContractRequest{ChainID: chain, Contract: args[1]}, path, action, nil
			}),
		}
	}

	root.AddCommand(
		send,
		contract("set-destination", "Set the peer that receives messages sent to a chain", "/admin/destination", handlers.ActionSetDestination),
		contract("set-source", "Set the trusted sender for messages from a chain", "/admin/source", handlers.ActionSetSource),
		&cobra.Command{
			Use:   "set-limit [chainId] [limit]",
			Short: "Set the daily limit of a chain, 0 blocks it",
			Args:  cobra.ExactArgs(2),
			RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
				chain, err := parseChainID(args[0])
				if err != nil {
					return nil, "", "", err
				}
				return &handlers.LimitRequest{ChainID: chain, Limit: args[1]}, "/admin/limit", handlers.ActionSetLimit, nil
			}),
		},
		&cobra.Command{
			Use:   "set-chain-id [chainId]",
			Short: "Change the chain id this locker is known by",
			Args:  cobra.ExactArgs(1),
			RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
				chain, err := parseChainID(args[0])
				if err != nil {
					return nil, "", "", err
				}
				return &handlers.ChainIDRequest{ChainID: chain}, "/admin/chain-id", handlers.ActionSetChainID, nil
			}),
		},
		&cobra.Command{
			Use:   "transfer-ownership [newOwner]",
			Short: "Nominate a new owner, who has to accept",
			Args:  cobra.ExactArgs(1),
			RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
				return &handlers.OwnershipRequest{NewOwner: args[0]}, "/admin/ownership/transfer", handlers.ActionTransferOwnership, nil
			}),
		},
		&cobra.Command{
			Use:   "accept-ownership",
			Short: "Accept a pending ownership transfer",
			Args:  cobra.NoArgs,
			RunE: signed(func(cmd *cobra.Command, args []string) (handlers.SignedRequest, string, string, error) {
				return &handlers.AcceptOwnershipRequest{}, "/admin/ownership/accept", handlers.ActionAcceptOwnership, nil
			}),
		},
	)
	return root
}

func parseChainID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

func newVerifyCmd(s settings) *cobra.Command {
	var landID, fingerprint string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Publicly verify a parcel by land id or fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if landID == "" && fingerprint == "" {
				return fmt.Errorf("provide --land-id or --fingerprint")
			}
			q := url.Values{}
			if landID != "" {
				q.Set("landId", landID)
			}
			if fingerprint != "" {
				q.Set("fingerprint", fingerprint)
			}

			var view parcel.PublicView
			if err := newClient(s).getJSON("/api/verify?"+q.Encode(), &view); err != nil {
				return err
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), view)
			}
			printTable(cmd.OutOrStdout(), []string{"Land ID", "Owner", "Status", "Fingerprint", "Verified"}, [][]string{{
				view.LandID,
				view.OwnerName,
				string(view.Status),
				deref(view.Fingerprint),
				formatTime(view.VerifiedAt),
			}})
			return nil
		},
	}
	cmd.Flags().StringVar(&landID, "land-id", "", "Land id to look up")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Approval fingerprint (SHA-256 hex) to look up")
	return cmd
}

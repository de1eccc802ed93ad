package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
)

func (cli *commandLine) payments(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("payments")
	statuses := cmd.String("status", string(enrollment.PaymentProofSubmitted), "Comma separated statuses; empty lists all.")
	courseID := cmd.String("course", "", "Only payments for this course.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}

	filter := enrollment.PaymentFilter{CourseID: *courseID}
	for _, s := range strings.Split(*statuses, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			filter.Statuses = append(filter.Statuses, enrollment.PaymentStatus(s))
		}
	}

	pmts, err := cli.enrSvc.ListPayments(ctx, cliAdmin, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREFERENCE\tAMOUNT\tSTATUS\tSUBMITTED")
	for _, p := range pmts {
		fmt.Fprintf(w, "%s\t%s\t%d.%02d %s\t%s\t%s\n",
			p.ID, p.ReferenceID, p.AmountCents/100, p.AmountCents%100, p.Currency, p.Status, p.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (cli *commandLine) review(ctx context.Context, action string, args []string) error {
	cmd := cli.newFlagSet(action)
	paymentID := cmd.String("payment", "", "The payment id.")
	reason := cmd.String("reason", "", "Why the payment is refused (reject only).")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *paymentID == "" {
		cmd.Usage()
		return errHelp
	}
	if err := cli.confirm(fmt.Sprintf("%s payment %s?", strings.ToUpper(action[:1])+action[1:], *paymentID)); err != nil {
		return err
	}

	var (
		pmt enrollment.Payment
		err error
	)
	if action == "approve" {
		pmt, err = cli.enrSvc.Approve(ctx, cliAdmin, *paymentID)
	} else {
		pmt, err = cli.enrSvc.Reject(ctx, cliAdmin, *paymentID, *reason)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "payment %s is now %s\n", pmt.ReferenceID, pmt.Status)
	return nil
}

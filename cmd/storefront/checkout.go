package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v81"

	"github.com/akeditz/storefront/internal/checkout"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/payments/card"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
)

const waitPoll = 200 * time.Millisecond

type checkoutOpts struct {
	method        string
	paymentMethod string
	returnURL     string
	stripeAPIBase string
	acceptTerms   bool
	timeout       time.Duration
}

func checkoutCmd(a *app) *cobra.Command {
	var opts checkoutOpts

	cmd := &cobra.Command{
		Use:   "checkout <project-id>",
		Short: "Buy a project by card or QR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			method, err := checkout.ParseMethod(opts.method)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runCheckout(ctx, a, cmd.OutOrStdout(), args[0], method, opts)
		},
	}

	cmd.Flags().StringVar(&opts.method, "method", "card", "Payment method: card or qr")
	cmd.Flags().StringVar(&opts.paymentMethod, "payment-method", "pm_card_visa", "Stripe payment method to confirm with")
	cmd.Flags().StringVar(&opts.returnURL, "return-url", "", "Where the card issuer returns after authentication")
	cmd.Flags().StringVar(&opts.stripeAPIBase, "stripe-api-base", "", "Stripe API base URL (e.g. a stripe-mock instance)")
	cmd.Flags().BoolVar(&opts.acceptTerms, "accept-terms", false, "Accept the terms and conditions")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 20*time.Minute, "Give up after this long")
	return cmd
}

func runCheckout(ctx context.Context, a *app, out io.Writer, projectID string, method checkout.Method, opts checkoutOpts) error {
	client := a.client()
	cfg := a.cfg.Checkout

	userID := ""
	if u := a.session.User(); u != nil {
		userID = u.ID
	}

	navigated := make(chan string, 1)
	orch, err := checkout.Begin(ctx, client, uuid.NewString(), userID, projectID, checkout.Deps{
		Backend: client,
		Intent: intent.Config{
			MaxRetries: cfg.IntentRetries,
			RetryDelay: cfg.IntentRetryDelay,
			Currency:   cfg.Currency,
			OnAttempt: func(attempt int, err error) {
				if err != nil {
					fmt.Fprintf(out, "Preparing payment failed (attempt %d): %s\n", attempt, intent.Classify(err))
				}
			},
		},
		QR: qr.Config{
			PollInterval: cfg.QRPollInterval,
			Timeout:      cfg.QRTimeout,
		},
		RedirectDelay: cfg.RedirectDelay,
		Navigator: checkout.NavigatorFunc(func(path string) {
			navigated <- path
		}),
	})
	if err != nil {
		if g, ok := checkout.AsGuardError(err); ok {
			return fmt.Errorf("%s: %s", g.Title, g.Message)
		}
		return err
	}
	defer orch.Close()

	snap := orch.Snapshot()
	fmt.Fprintf(out, "Checkout: %s for %s\n", snap.ProjectTitle, snap.AmountDisplay)

	switch method {
	case checkout.MethodCard:
		err = payByCard(ctx, a, out, orch, opts)
	case checkout.MethodQR:
		err = payByQR(ctx, out, orch)
	}
	if err != nil {
		return err
	}

	snap, err = orch.Wait(ctx, waitPoll)
	if err != nil {
		return fmt.Errorf("waiting for payment: %w", err)
	}
	if snap.QR != nil && snap.QR.State != qr.StateSucceeded {
		return errors.New(snap.QR.Error)
	}

	fmt.Fprintln(out, "Payment successful!")
	select {
	case path := <-navigated:
		fmt.Fprintf(out, "Your purchase is on the dashboard (%s)\n", path)
	case <-ctx.Done():
	}
	return nil
}

func payByCard(ctx context.Context, a *app, out io.Writer, orch *checkout.Orchestrator, opts checkoutOpts) error {
	if a.cfg.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required for card checkout")
	}
	if !opts.acceptTerms {
		return fmt.Errorf("the terms and conditions must be accepted (--accept-terms)")
	}

	if err := orch.SelectMethod(ctx, checkout.MethodCard); err != nil {
		var f *intent.Failure
		if errors.As(err, &f) {
			return fmt.Errorf("could not prepare the payment after %d attempts: %s", f.Attempts, f.Message)
		}
		return err
	}
	if err := orch.AcceptTerms(true); err != nil {
		return err
	}

	var backend stripe.Backend
	if opts.stripeAPIBase != "" {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:           stripe.String(opts.stripeAPIBase),
			LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
		})
	}
	confirmer := card.NewStripeConfirmer(a.cfg.Stripe.SecretKey, opts.paymentMethod, opts.returnURL, backend)

	outcome, err := orch.SubmitCard(ctx, confirmer)
	if err != nil {
		return err
	}
	switch outcome.State {
	case card.StateSucceeded:
		return nil
	case card.StateConfirming:
		if outcome.RedirectURL != "" {
			fmt.Fprintf(out, "Complete authentication at:\n  %s\n", outcome.RedirectURL)
			return fmt.Errorf("payment needs authentication, re-run checkout once it is done")
		}
		return fmt.Errorf("payment is still processing, check `storefront purchases` shortly")
	}
	return errors.New(outcome.Message)
}

func payByQR(ctx context.Context, out io.Writer, orch *checkout.Orchestrator) error {
	if err := orch.SelectMethod(ctx, checkout.MethodQR); err != nil {
		return err
	}

	snap := orch.Snapshot()
	if snap.QR == nil || snap.QR.State == qr.StateFailed {
		msg := "could not create the QR payment"
		if snap.QR != nil && snap.QR.Error != "" {
			msg = snap.QR.Error
		}
		return errors.New(msg)
	}

	fmt.Fprintf(out, "Scan to pay %s:\n  %s\n", domain.FormatAmount(snap.Amount), snap.QR.ImageURL)
	if snap.QR.ExpiresAt != nil {
		fmt.Fprintf(out, "The code expires at %s\n", snap.QR.ExpiresAt.Local().Format(time.Kitchen))
	}
	fmt.Fprintln(out, "Waiting for payment...")
	return nil
}

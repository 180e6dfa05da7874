package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/catalog"
	"github.com/longle289/TrustAustralia/common/logger"
	"github.com/longle289/TrustAustralia/config"
	"github.com/longle289/TrustAustralia/database"
	"github.com/longle289/TrustAustralia/kafka"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/longle289/TrustAustralia/sender"
	"github.com/longle289/TrustAustralia/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTimeout = 2 * time.Minute

// settings layers ORDERSCTL_* environment variables under the command's flags.
func settings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ordersctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func commandContext(cmd *cobra.Command, v *viper.Viper) (context.Context, context.CancelFunc) {
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

type deps struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func (r *deps) Close() {
	_ = database.Close(r.db)
	_ = r.logger.Sync()
}

func openDeps(ctx context.Context, migrate bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.AWSUseSecrets {
		awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		if err := cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, fmt.Errorf("load secrets: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.Initialize(cfg.Env, nil)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tables []interface{}
	if migrate {
		tables = []interface{}{&models.Order{}, &models.User{}, &models.NotificationLog{}}
	}
	db, err := database.ConnectPostgres(ctx, cfg.PostgresDSN(), log, tables...)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &deps{cfg: cfg, logger: log, db: db}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the orders, users and notification_logs tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, v)
			defer cancel()

			rt, err := openDeps(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-run completion for a paid checkout session",
		Long: `Fetches the checkout session from Stripe and, when it is paid, runs the
same completion the webhook and the return page use. Safe to repeat: an order
that is already COMPLETED is not changed and no second email is sent.

Examples:
  ordersctl reconcile --session cs_live_a1b2c3
  ORDERSCTL_SESSION=cs_live_a1b2c3 ordersctl reconcile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			sessionID := strings.TrimSpace(v.GetString("session"))
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			ctx, cancel := commandContext(cmd, v)
			defer cancel()

			rt, err := openDeps(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			verifier, closeFn, err := buildVerifier(ctx, rt)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := verifier.Reconcile(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", sessionID, err)
			}
			printResult(cmd.OutOrStdout(), sessionID, res)
			return nil
		},
	}
	cmd.Flags().StringP("session", "s", "", "Stripe checkout session ID")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an order and its email history as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			sessionID, id := v.GetString("session"), v.GetString("id")
			if (sessionID == "") == (id == "") {
				return fmt.Errorf("exactly one of --session or --id is required")
			}
			ctx, cancel := commandContext(cmd, v)
			defer cancel()

			rt, err := openDeps(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			order, err := findOrder(ctx, repository.NewGormOrderRepository(rt.db), sessionID, id)
			if err != nil {
				return err
			}
			logs, err := repository.NewNotificationRepository(rt.db).ListForOrder(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("notification history: %w", err)
			}
			return printOrder(cmd.OutOrStdout(), order, logs)
		},
	}
	cmd.Flags().StringP("session", "s", "", "Stripe checkout session ID")
	cmd.Flags().String("id", "", "Order ID")
	return cmd
}

func productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the catalog with prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			printProducts(cmd.OutOrStdout(), catalog.All())
			return nil
		},
	}
}

func printProducts(w io.Writer, products []catalog.Product) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tPRICE\tFULFILMENT")
	for _, p := range products {
		fulfilment := "automatic"
		if p.ManualProcessing {
			fulfilment = "manual"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Key, p.Name, catalog.FormatAmount(p.Price), fulfilment)
	}
	_ = tw.Flush()
}

// buildVerifier wires the completion path the way the API server does. Email
// goes through SMTP when configured, otherwise it is only logged.
func buildVerifier(ctx context.Context, rt *deps) (*services.VerifyService, func(), error) {
	cfg, log := rt.cfg, rt.logger
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var publishers services.MultiPublisher
	var metrics services.MetricsRecorder
	awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		log.Warn("AWS config unavailable, SNS events and metrics disabled", zap.Error(err))
	} else {
		metrics = awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
		if cfg.OrderSNSTopicARN != "" {
			publishers = append(publishers, services.NewSNSEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.OrderSNSTopicARN))
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewOrderEventProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, log)
		closers = append(closers, func() { _ = producer.Close() })
		publishers = append(publishers, producer)
	}

	var emailSender sender.EmailSender = sender.NewLogSender(log)
	if cfg.SMTPHost != "" {
		smtpSender, err := sender.NewSMTPSender(sender.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("smtp config: %w", err)
		}
		emailSender = smtpSender
	}

	notifier, err := services.NewNotificationService(repository.NewNotificationRepository(rt.db), emailSender, cfg.EmailTo, log)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	orders := repository.NewGormOrderRepository(rt.db)
	fulfillment := services.NewFulfillmentService(orders, repository.NewGormUserRepository(rt.db), notifier, publishers, metrics, log)
	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)
	return services.NewVerifyService(stripeSvc, fulfillment, nil, metrics, log), closeAll, nil
}

type orderFinder interface {
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
}

func findOrder(ctx context.Context, orders orderFinder, sessionID, id string) (*models.Order, error) {
	if sessionID != "" {
		order, err := orders.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		return order, nil
	}
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", id, err)
	}
	order, err := orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	return order, nil
}

type orderView struct {
	Order         *models.Order            `json:"order"`
	Notifications []models.NotificationLog `json:"notifications"`
}

func printOrder(w io.Writer, order *models.Order, logs []models.NotificationLog) error {
	if logs == nil {
		logs = []models.NotificationLog{}
	}
	out, err := json.MarshalIndent(orderView{Order: order, Notifications: logs}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printResult(w io.Writer, sessionID string, res *services.CompletionResult) {
	if res == nil || res.Order == nil {
		fmt.Fprintf(w, "Session %s is not paid, nothing to do\n", sessionID)
		return
	}
	fmt.Fprintf(w, "Order %s is %s (transitioned=%t recovered=%t linked=%t notified=%t)\n",
		res.Order.ID, res.Order.Status, res.Transitioned, res.Recovered, res.Linked, res.Notified)
}

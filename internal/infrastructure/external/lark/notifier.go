package lark

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Notifier implements port.Notifier by sending IM text messages. Users
// without a Lark open ID are skipped.
type Notifier struct {
	sender port.MessageSender
	logger *zap.Logger
}

// NewNotifier creates a new Notifier on top of a message sender
func NewNotifier(sender port.MessageSender, logger *zap.Logger) port.Notifier {
	return &Notifier{
		sender: sender,
		logger: logger,
	}
}

func (n *Notifier) NotifySubmitted(ctx context.Context, expense *entity.Expense, employee *entity.User) error {
	text := fmt.Sprintf("Your expense %s (%s, %s) was submitted for approval.",
		expense.ID, formatAmount(expense), expense.Category)
	return n.send(ctx, employee, text)
}

func (n *Notifier) NotifyApprovalRequested(ctx context.Context, expense *entity.Expense, approvers []*entity.User, escalated bool) error {
	prefix := "Approval requested"
	if escalated {
		prefix = "Escalated approval requested"
	}
	text := fmt.Sprintf("%s: expense %s from %s, %s, %s.",
		prefix, expense.ID, expense.EmployeeID, formatAmount(expense), expense.Category)
	if expense.Description != "" {
		text += "\n" + expense.Description
	}

	var errs []error
	for _, approver := range approvers {
		if err := n.send(ctx, approver, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) NotifyApproved(ctx context.Context, expense *entity.Expense, employee *entity.User) error {
	text := fmt.Sprintf("Your expense %s (%s) was approved.", expense.ID, formatAmount(expense))
	return n.send(ctx, employee, text)
}

func (n *Notifier) NotifyRejected(ctx context.Context, expense *entity.Expense, employee *entity.User, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Your expense %s (%s) was rejected.", expense.ID, formatAmount(expense))
	if reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", reason)
	}
	return n.send(ctx, employee, b.String())
}

func (n *Notifier) send(ctx context.Context, user *entity.User, text string) error {
	if user == nil || user.LarkOpenID == "" {
		if user != nil {
			n.logger.Debug("Skipping notification, no Lark open ID", zap.String("user_id", user.ID))
		}
		return nil
	}
	if err := n.sender.SendText(ctx, user.LarkOpenID, text); err != nil {
		return fmt.Errorf("notify %s: %w", user.ID, err)
	}
	return nil
}

func formatAmount(expense *entity.Expense) string {
	return expense.Amount.StringFixed(2) + " " + expense.Currency
}

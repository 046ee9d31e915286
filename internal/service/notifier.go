package service

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Notifier sends badge-unlock emails via Amazon SES. When no from-address
// is configured the notifier is disabled and every send is a logged no-op,
// so local development needs no AWS credentials.
type Notifier struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// NewNotifier creates a new notifier
func NewNotifier(awsRegion, fromEmail, fromName, appBaseURL string) (*Notifier, error) {
	if fromEmail == "" {
		log.Println("Badge notifier disabled: SES_FROM_EMAIL not configured")
		return &Notifier{enabled: false}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(awsRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Badge notifier enabled: from=%s, region=%s", fromEmail, awsRegion)

	return &Notifier{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

// IsEnabled returns whether the notifier is enabled.
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// SendBadgeUnlocked emails the actor about a newly earned badge.
func (n *Notifier) SendBadgeUnlocked(ctx context.Context, toEmail, toName, badgeName, badgeDescription string) error {
	if !n.enabled {
		log.Printf("Skipping email send (notifier disabled): badge %q to %s", badgeName, toEmail)
		return nil
	}
	if toEmail == "" {
		return nil
	}

	subject := fmt.Sprintf("You earned the %s badge!", badgeName)
	textBody := fmt.Sprintf(
		"Hi %s,\n\nYou just unlocked the %s badge: %s\n\nSee your progress at %s\n",
		toName, badgeName, badgeDescription, n.appBaseURL,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>You just unlocked the <strong>%s</strong> badge: %s</p><p><a href="%s">See your progress</a></p>`,
		toName, badgeName, badgeDescription, n.appBaseURL,
	)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(textBody)},
					Html: &types.Content{Data: aws.String(htmlBody)},
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send badge email: %w", err)
	}
	return nil
}

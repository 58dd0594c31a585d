package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitBrokers(t *testing.T) {
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, splitBrokers("kafka-1:9092|kafka-2:9092"))
	require.Equal(t, []string{"kafka-1:9092"}, splitBrokers(" kafka-1:9092 "))
	require.Nil(t, splitBrokers(""))
	require.Nil(t, splitBrokers(" | "))
}

func TestKafkaNotifierWithoutBrokers(t *testing.T) {
	notifier := NewKafkaNotifier("", "SMS_NOTIFICATION", zap.NewNop())

	delivered := notifier.Send(context.Background(), Notification{
		Meta:      NotificationMeta{Type: "sms_notification", Subtype: "otp"},
		Details:   map[string]interface{}{"verification_code": "123456"},
		Recipient: "0244444449",
	})
	require.False(t, delivered)
	require.NoError(t, notifier.Close())
}

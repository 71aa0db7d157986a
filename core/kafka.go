package core

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// feedKafka consumes records from Kafka and feeds their lines to the
// first stage. A record line equal to the sentinel ends consumption.
func (b *Analyzer) feedKafka() error {
	var (
		broker = b.K.String("kafka")
		topics = b.K.String("topics")
		group  = b.K.String("group")
	)
	if topics == "" {
		return fmt.Errorf("--kafka needs --topics")
	}

	b.Info().Str("broker", broker).Str("group", group).Msg("connecting")

	opts := []kgo.Opt{
		kgo.SeedBrokers(broker),
		kgo.ConsumerGroup(group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("could not create kafka client: %w", err)
	}
	defer client.Close()

	names, err := b.discoverTopics(client, topics)
	if err != nil {
		return fmt.Errorf("could not discover topics: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no matching topics found for pattern: %s", topics)
	}

	b.Info().Int("count", len(names)).Msg("subscribing to topics")
	client.AddConsumeTopics(names...)

	ended := false
	for !ended {
		fetches := client.PollFetches(b.Ctx)
		if fetches.IsClientClosed() || b.Ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, p int32, err error) {
			b.Error().Err(err).Str("topic", topic).Int32("partition", p).Msg("fetch error")
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			if ended {
				return
			}
			for _, raw := range bytes.Split(rec.Value, []byte{'\n'}) {
				if len(raw) == 0 {
					continue
				}
				if len(raw) > MaxLineLen {
					raw = raw[:MaxLineLen]
				}
				line := string(raw)
				if err := b.Feed(line); err != nil {
					b.Error().Err(err).Msg("could not place work")
					ended = true
					return
				}
				if line == Sentinel {
					ended = true
					return
				}
			}
		})
	}

	return nil
}

// discoverTopics lists broker topics and returns those matching pattern.
func (b *Analyzer) discoverTopics(client *kgo.Client, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("--topics: %w", err)
	}

	adm := kadm.NewClient(client)
	details, err := adm.ListTopics(b.Ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range details.Names() {
		if re.MatchString(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

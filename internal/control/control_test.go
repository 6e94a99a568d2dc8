package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/config"
	"github.com/hdds-team/hdds/internal/discovery"
)

func testConfig(domainID uint32) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DomainID = domainID
	return cfg
}

func Test_CreateDestroyParticipant(t *testing.T) {
	m := NewManager(nil)

	h, err := m.CreateParticipant(testConfig(210))
	require.NoError(t, err)
	assert.NotZero(t, h)

	require.NoError(t, m.DestroyParticipant(h))
	assert.Error(t, m.DestroyParticipant(h), "double destroy must fail with not-found")
}

func Test_CreateWriterAndReaderOnSameParticipantMatch(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(211))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)

	qos := discovery.QoS{Reliability: discovery.ReliabilityBestEffort}
	writer, err := m.CreateWriter(participant, topic, qos)
	require.NoError(t, err)

	reader, err := m.CreateReader(participant, topic, qos)
	require.NoError(t, err)

	require.NoError(t, m.Publish(writer, []byte("hello")))

	var payload []byte
	require.Eventually(t, func() bool {
		p, ok, err := m.Take(reader)
		require.NoError(t, err)
		if ok {
			payload = p
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "hello", string(payload))
}

func Test_ReliableWriterDeliversAndEmitsHeartbeats(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(213))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)

	qos := discovery.QoS{Reliability: discovery.ReliabilityReliable}
	writer, err := m.CreateWriter(participant, topic, qos)
	require.NoError(t, err)

	reader, err := m.CreateReader(participant, topic, qos)
	require.NoError(t, err)

	require.NoError(t, m.Publish(writer, []byte("hello")))

	var payload []byte
	require.Eventually(t, func() bool {
		p, ok, err := m.Take(reader)
		require.NoError(t, err)
		if ok {
			payload = p
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "hello", string(payload))

	require.Eventually(t, func() bool {
		snap, err := m.Metrics(participant)
		require.NoError(t, err)
		return snap.HeartbeatsSent > 0
	}, time.Second, 5*time.Millisecond)

	// DestroyWriter must stop the writer's HeartbeatEmitter goroutine
	// cleanly, without hanging or panicking, while the participant is
	// still running.
	require.NoError(t, m.DestroyWriter(participant, writer))
}

func Test_PublishRejectsEmptyPayload(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(212))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)

	writer, err := m.CreateWriter(participant, topic, discovery.DefaultQoS())
	require.NoError(t, err)

	assert.Error(t, m.Publish(writer, nil))
}

func Test_TakeOnEmptyQueueReturnsFalseNotError(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(213))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)

	reader, err := m.CreateReader(participant, topic, discovery.DefaultQoS())
	require.NoError(t, err)

	_, ok, err := m.Take(reader)
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_WaitSetWithGuardCondition(t *testing.T) {
	m := NewManager(nil)

	waitset := m.CreateWaitSet()
	defer m.DestroyWaitSet(waitset)

	guard := m.CreateGuardCondition()
	defer m.DestroyGuardCondition(guard)

	require.NoError(t, m.AttachGuardCondition(waitset, guard))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.TriggerGuardCondition(guard)
	}()

	triggered, err := m.Wait(waitset, time.Second)
	require.NoError(t, err)
	assert.Contains(t, triggered, guard)
}

func Test_WaitSetTimesOutWithNoTrigger(t *testing.T) {
	m := NewManager(nil)

	waitset := m.CreateWaitSet()
	defer m.DestroyWaitSet(waitset)

	guard := m.CreateGuardCondition()
	defer m.DestroyGuardCondition(guard)
	require.NoError(t, m.AttachGuardCondition(waitset, guard))

	_, err := m.Wait(waitset, 20*time.Millisecond)
	assert.Error(t, err)
}

func Test_CreateWriterOnUnknownTopicFails(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(214))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	_, err = m.CreateWriter(participant, Handle(99999), discovery.DefaultQoS())
	assert.Error(t, err)
}

func Test_GraphVisitorWalksLocalEndpoints(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(215))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)
	_, err = m.CreateWriter(participant, topic, discovery.DefaultQoS())
	require.NoError(t, err)

	graph, err := m.Graph(participant)
	require.NoError(t, err)

	var topics []string
	graph.VisitTopics(func(_ int, name string) bool {
		topics = append(topics, name)
		return true
	})
	assert.Contains(t, topics, "chatter")
}

func Test_MetricsCountsReliableTraffic(t *testing.T) {
	m := NewManager(nil)

	participant, err := m.CreateParticipant(testConfig(216))
	require.NoError(t, err)
	defer m.DestroyParticipant(participant)

	topic, err := m.CreateTopic(participant, "chatter", "ChatMessage")
	require.NoError(t, err)

	qos := discovery.QoS{Reliability: discovery.ReliabilityReliable}
	writer, err := m.CreateWriter(participant, topic, qos)
	require.NoError(t, err)
	_, err = m.CreateReader(participant, topic, qos)
	require.NoError(t, err)

	require.NoError(t, m.Publish(writer, []byte("hello")))

	require.Eventually(t, func() bool {
		snap, err := m.Metrics(participant)
		require.NoError(t, err)
		return snap.HeartbeatsSent > 0
	}, time.Second, 5*time.Millisecond)
}

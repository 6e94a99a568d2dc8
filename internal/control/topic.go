package control

import (
	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/xerr"
)

// topicEntry is a topic type binding (spec §6 "topic type binding"): the
// name/type pairing writers and readers are created against. It carries
// no network state of its own; the registry exists only so a binding can
// be created once and shared by many CreateWriter/CreateReader calls.
type topicEntry struct {
	Name     string
	TypeName string
}

// CreateTopic registers a topic name/type binding under participant,
// returning a Handle later passed to CreateWriter/CreateReader.
func (m *Manager) CreateTopic(participant Handle, name, typeName string) (Handle, error) {
	if name == "" || typeName == "" {
		return 0, xerr.Wrap(xerr.InvalidArgument, nil)
	}

	pe, err := m.participant(participant)
	if err != nil {
		return 0, err
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()

	h := allocHandle()
	pe.topics[h] = topicEntry{Name: name, TypeName: typeName}
	return h, nil
}

// DestroyTopic releases a topic binding. Existing writers/readers created
// against it are unaffected; they keep their own copy of the name/type.
func (m *Manager) DestroyTopic(participant, topic Handle) error {
	pe, err := m.participant(participant)
	if err != nil {
		return err
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()

	if _, ok := pe.topics[topic]; !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}
	delete(pe.topics, topic)
	return nil
}

func (pe *participantEntry) lookupTopic(h Handle) (topicEntry, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	t, ok := pe.topics[h]
	if !ok {
		return topicEntry{}, xerr.Wrap(xerr.NotFound, nil)
	}
	return t, nil
}

// defaultQoS returns the vendor-dialect default QoS (spec §4.6). Nothing
// in this package calls it: CreateWriter and CreateReader always take an
// explicit QoS argument.
func defaultQoS() discovery.QoS {
	return discovery.DefaultQoS()
}

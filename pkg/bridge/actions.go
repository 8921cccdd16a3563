package bridge

// Action names a command crossing the boundary.
type Action string

const (
	ActionInit             Action = "init"
	ActionRegister         Action = "register"
	ActionUnregister       Action = "unregister"
	ActionSyncUserData     Action = "syncUserData"
	ActionFetchUserData    Action = "fetchUserData"
	ActionMarkMessagesSeen Action = "markMessagesSeen"

	ActionMessageStorageRegister Action = "messageStorage_register"
	// ActionMessageStorageUnregister drops one target again, as when init fails
	// after the storage was registered.
	ActionMessageStorageUnregister Action = "messageStorage_unregister"

	ActionDefaultStorageFind      Action = "defaultMessageStorage_find"
	ActionDefaultStorageFindAll   Action = "defaultMessageStorage_findAll"
	ActionDefaultStorageDelete    Action = "defaultMessageStorage_delete"
	ActionDefaultStorageDeleteAll Action = "defaultMessageStorage_deleteAll"

	ActionMessageStorageFindResult    Action = "messageStorage_findResult"
	ActionMessageStorageFindAllResult Action = "messageStorage_findAllResult"
)

// StorageTarget names one operation of a custom MessageStorage, registered with
// ActionMessageStorageRegister.
type StorageTarget string

const (
	TargetStart   StorageTarget = "messageStorage.start"
	TargetStop    StorageTarget = "messageStorage.stop"
	TargetSave    StorageTarget = "messageStorage.save"
	TargetFind    StorageTarget = "messageStorage.find"
	TargetFindAll StorageTarget = "messageStorage.findAll"
)

// StorageTargets lists every target in registration order.
var StorageTargets = []StorageTarget{TargetStart, TargetStop, TargetSave, TargetFind, TargetFindAll}

// Event names a stream the native layer emits.
type Event string

const (
	EventMessageReceived     Event = "messageReceived"
	EventRegistrationUpdated Event = "registrationUpdated"
	// EventTokenReceived is only emitted where the native transport exposes the
	// raw device token (iOS). Elsewhere subscribers simply never see it.
	EventTokenReceived Event = "tokenReceived"
)

// Known reports whether the native layer has a counterpart for e.
func (e Event) Known() bool {
	switch e {
	case EventMessageReceived, EventRegistrationUpdated, EventTokenReceived:
		return true
	}
	return false
}

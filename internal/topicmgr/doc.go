// Package topicmgr defines the pub/sub topics the hub publishes and consumes
// and keeps a registry of them for discovery.
//
// Topics are declared once as package variables by the package that owns
// them, then registered with a Manager:
//
//	var ConnectionOpened = topicmgr.DefineOutbound(topicmgr.TopicConfig{
//		Name:        "realtime.connection.opened",
//		Description: "Published when a client connection joins a room",
//		Pattern:     "realtime.connection.opened",
//		Example:     `{"room":"channel-42","conn_id":"3f0c..."}`,
//	})
//
//	if err := topicmgr.Default().Register(ConnectionOpened); err != nil {
//		log.Fatal(err)
//	}
//
// Names are lowercase dotted identifiers starting with "realtime." or
// "presence.". Registered topics can be listed, for example by the
// `huddle topics` command.
package topicmgr

// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Stagelink-send submits a command file to the gateway and waits for
// the worker's response. Command files are JSONC, so they can carry
// comments and trailing commas:
//
//	{
//	  // lower-third countdown
//	  "endpoint": "trigger",
//	  "method": "POST",
//	  "payload": {
//	    "messageID": "c0e5",
//	    "messageToken": "countdown",
//	    "messageContent": "5:00",
//	  },
//	}
package main

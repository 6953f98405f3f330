// Package messages defines the PSRP message type identifiers and the records
// their CLIXML payloads carry.
//
// Every PSRP message carries a MessageType and a CLIXML payload. The record
// shape of each payload is declared here as an objects.TypeDescriptor and
// registered in the message catalog with objects.RegisterMessage, so a
// payload can be built with Marshal and checked and restored with Unmarshal.
//
// Message framing (destination, runspace and pipeline IDs) and fragmentation
// belong to the transport and are not handled here.
//
// # Message Categories
//
// Messages are grouped by functionality:
//
//   - Session messages: Capability exchange, key negotiation
//   - Runspace messages: Pool creation, state changes
//   - Pipeline messages: Command execution, output streaming
//   - Host messages: Interactive callbacks to the client
//
// # Reference
//
// MS-PSRP Section 2.2.1: https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-psrp/
package messages

import "fmt"

// Destination indicates whether a message is for the client or server.
type Destination uint32

const (
	// DestinationClient indicates the message is for the client.
	DestinationClient Destination = 1
	// DestinationServer indicates the message is for the server.
	DestinationServer Destination = 2
)

// MessageType identifies the type of PSRP message.
type MessageType uint32

// Session and capability message types.
// Reference: MS-PSRP Section 2.2.1
const (
	// Session capability exchange - MS-PSRP 2.2.5.1
	MessageTypeSessionCapability MessageType = 0x00010002
	// Runspace pool initialization - MS-PSRP 2.2.2.1
	MessageTypeInitRunspacePool MessageType = 0x00010004
	// Public key for encryption - MS-PSRP 2.2.5.2
	MessageTypePublicKey MessageType = 0x00010005
	// Encrypted session key - MS-PSRP 2.2.5.3
	MessageTypeEncryptedSessionKey MessageType = 0x00010006
	// Request for public key - MS-PSRP 2.2.5.4
	MessageTypePublicKeyRequest MessageType = 0x00010007
	// Connect to existing runspace pool - MS-PSRP 2.2.2.9
	MessageTypeConnectRunspacePool MessageType = 0x00010008
	// Runspace pool state change - MS-PSRP 2.2.2.2
	MessageTypeRunspacePoolState MessageType = 0x00021005
)

// Runspace pool management message types.
// Reference: MS-PSRP Section 2.2.2
const (
	// Set maximum runspaces - MS-PSRP 2.2.2.3
	MessageTypeSetMaxRunspaces MessageType = 0x00021002
	// Set minimum runspaces - MS-PSRP 2.2.2.4
	MessageTypeSetMinRunspaces MessageType = 0x00021003
	// Runspace availability notification - MS-PSRP 2.2.2.5
	MessageTypeRunspaceAvailability MessageType = 0x00021004
	// Get available runspaces - MS-PSRP 2.2.2.6
	MessageTypeGetAvailableRunspaces MessageType = 0x00021007
	// User event - MS-PSRP 2.2.2.7
	MessageTypeUserEvent MessageType = 0x00021008
	// Application private data - MS-PSRP 2.2.2.8
	MessageTypeApplicationPrivate MessageType = 0x00021009
	// Get command metadata - MS-PSRP 2.2.3.1
	MessageTypeGetCommandMetadata MessageType = 0x0002100A
	// Runspace pool initialization data - MS-PSRP 2.2.2.10
	MessageTypeRunspacePoolInitData MessageType = 0x0002100B
	// Reset runspace state - MS-PSRP 2.2.2.11
	MessageTypeResetRunspaceState MessageType = 0x0002100C
)

// Host callback message types.
// Reference: MS-PSRP Section 2.2.4
const (
	// Runspace pool host call - MS-PSRP 2.2.4.1
	MessageTypeRunspaceHostCall MessageType = 0x00021100
	// Runspace pool host response - MS-PSRP 2.2.4.2
	MessageTypeRunspaceHostResponse MessageType = 0x00021101
)

// Pipeline message types.
// Reference: MS-PSRP Section 2.2.3
const (
	// Create pipeline - MS-PSRP 2.2.3.2
	MessageTypeCreatePipeline MessageType = 0x00021006
	// Signal pipeline (stop/interrupt) - MS-PSRP 2.2.3.13
	MessageTypeSignal MessageType = 0x00041001
	// Pipeline input data - MS-PSRP 2.2.3.3
	MessageTypePipelineInput MessageType = 0x00041002
	// End of pipeline input - MS-PSRP 2.2.3.4
	MessageTypeEndOfPipelineInput MessageType = 0x00041003
	// Pipeline output data - MS-PSRP 2.2.3.5
	MessageTypePipelineOutput MessageType = 0x00041004
	// Error record - MS-PSRP 2.2.3.6
	MessageTypeErrorRecord MessageType = 0x00041005
	// Pipeline state - MS-PSRP 2.2.3.7
	MessageTypePipelineState MessageType = 0x00041006
	// Debug record - MS-PSRP 2.2.3.8
	MessageTypeDebugRecord MessageType = 0x00041007
	// Verbose record - MS-PSRP 2.2.3.9
	MessageTypeVerboseRecord MessageType = 0x00041008
	// Warning record - MS-PSRP 2.2.3.10
	MessageTypeWarningRecord MessageType = 0x00041009
	// Progress record - MS-PSRP 2.2.3.11
	MessageTypeProgressRecord MessageType = 0x00041010
	// Information record - MS-PSRP 2.2.3.12
	MessageTypeInformationRecord MessageType = 0x00041011
	// Pipeline host call - MS-PSRP 2.2.4.3
	MessageTypePipelineHostCall MessageType = 0x00041100
	// Pipeline host response - MS-PSRP 2.2.4.4
	MessageTypePipelineHostResponse MessageType = 0x00041101
)

var messageTypeNames = map[MessageType]string{
	MessageTypeSessionCapability:     "SESSION_CAPABILITY",
	MessageTypeInitRunspacePool:      "INIT_RUNSPACEPOOL",
	MessageTypePublicKey:             "PUBLIC_KEY",
	MessageTypeEncryptedSessionKey:   "ENCRYPTED_SESSION_KEY",
	MessageTypePublicKeyRequest:      "PUBLIC_KEY_REQUEST",
	MessageTypeConnectRunspacePool:   "CONNECT_RUNSPACEPOOL",
	MessageTypeRunspacePoolState:     "RUNSPACEPOOL_STATE",
	MessageTypeSetMaxRunspaces:       "SET_MAX_RUNSPACES",
	MessageTypeSetMinRunspaces:       "SET_MIN_RUNSPACES",
	MessageTypeRunspaceAvailability:  "RUNSPACE_AVAILABILITY",
	MessageTypeGetAvailableRunspaces: "GET_AVAILABLE_RUNSPACES",
	MessageTypeUserEvent:             "USER_EVENT",
	MessageTypeApplicationPrivate:    "APPLICATION_PRIVATE_DATA",
	MessageTypeGetCommandMetadata:    "GET_COMMAND_METADATA",
	MessageTypeRunspacePoolInitData:  "RUNSPACEPOOL_INIT_DATA",
	MessageTypeResetRunspaceState:    "RESET_RUNSPACE_STATE",
	MessageTypeRunspaceHostCall:      "RUNSPACEPOOL_HOST_CALL",
	MessageTypeRunspaceHostResponse:  "RUNSPACEPOOL_HOST_RESPONSE",
	MessageTypeCreatePipeline:        "CREATE_PIPELINE",
	MessageTypeSignal:                "SIGNAL",
	MessageTypePipelineInput:         "PIPELINE_INPUT",
	MessageTypeEndOfPipelineInput:    "END_OF_PIPELINE_INPUT",
	MessageTypePipelineOutput:        "PIPELINE_OUTPUT",
	MessageTypeErrorRecord:           "ERROR_RECORD",
	MessageTypePipelineState:         "PIPELINE_STATE",
	MessageTypeDebugRecord:           "DEBUG_RECORD",
	MessageTypeVerboseRecord:         "VERBOSE_RECORD",
	MessageTypeWarningRecord:         "WARNING_RECORD",
	MessageTypeProgressRecord:        "PROGRESS_RECORD",
	MessageTypeInformationRecord:     "INFORMATION_RECORD",
	MessageTypePipelineHostCall:      "PIPELINE_HOST_CALL",
	MessageTypePipelineHostResponse:  "PIPELINE_HOST_RESPONSE",
}

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(0x%08X)", uint32(t))
}

// ParseMessageType resolves a protocol name such as "PIPELINE_STATE".
func ParseMessageType(name string) (MessageType, bool) {
	for t, n := range messageTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// RunspacePoolState represents the state of a runspace pool.
type RunspacePoolState int32

// RunspacePoolState constants represent the state of a runspace pool.
const (
	RunspacePoolStateBeforeOpen   RunspacePoolState = 0
	RunspacePoolStateOpening      RunspacePoolState = 1
	RunspacePoolStateOpened       RunspacePoolState = 2
	RunspacePoolStateClosing      RunspacePoolState = 3
	RunspacePoolStateClosed       RunspacePoolState = 4
	RunspacePoolStateBroken       RunspacePoolState = 5
	RunspacePoolStateDisconnected RunspacePoolState = 6
	RunspacePoolStateConnecting   RunspacePoolState = 7
)

// PipelineState represents the state of a pipeline.
// These values correspond to the PSInvocationState enum defined in MS-PSRP Section 2.2.3.9.
type PipelineState int32

const (
	// PipelineStateNotStarted indicates the pipeline has not been invoked yet.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 0.
	PipelineStateNotStarted PipelineState = 0
	// PipelineStateRunning indicates the pipeline is currently executing.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 1.
	PipelineStateRunning PipelineState = 1
	// PipelineStateStopping indicates the pipeline is in the process of stopping.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 2.
	PipelineStateStopping PipelineState = 2
	// PipelineStateStopped indicates the pipeline has been stopped.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 3.
	PipelineStateStopped PipelineState = 3
	// PipelineStateCompleted indicates the pipeline completed successfully.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 4.
	PipelineStateCompleted PipelineState = 4
	// PipelineStateFailed indicates the pipeline failed with an error.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 5.
	PipelineStateFailed PipelineState = 5
	// PipelineStateDisconnected indicates the pipeline is in disconnected state.
	// MS-PSRP Section 2.2.3.9: PSInvocationState value 6.
	PipelineStateDisconnected PipelineState = 6
)

package objects

import (
	"fmt"
	"reflect"
)

// Type name chains of the built-in containers.
var (
	ArrayTypeNames     = []string{"System.Object[]", "System.Array", "System.Object"}
	HashtableTypeNames = []string{"System.Collections.Hashtable", "System.Object"}
	StackTypeNames     = []string{"System.Collections.Stack", "System.Object"}
	QueueTypeNames     = []string{"System.Collections.Queue", "System.Object"}
)

// Generic collection types. Instantiated names degrade to these on
// deserialization since CLIXML does not keep type arguments.
var (
	ListType = NewGenericType("System.Collections.Generic.List", 1, &TypeDescriptor{
		TypeNames:    []string{"System.Collections.Generic.List`1", "System.Object"},
		Container:    ContainerList,
		FromRemoting: unwrapContainer,
	})
	DictionaryType = NewGenericType("System.Collections.Generic.Dictionary", 2, &TypeDescriptor{
		TypeNames:    []string{"System.Collections.Generic.Dictionary`2", "System.Object"},
		Container:    ContainerDictionary,
		FromRemoting: unwrapContainer,
	})
)

// unwrapContainer returns the native container of a bare collection object.
// Objects that carry properties are kept whole.
func unwrapContainer(o *PSObject) (interface{}, error) {
	if o.BaseObject == nil || o.HasProperties() {
		return o, nil
	}
	return o.BaseObject, nil
}

func containerDescriptor(kind ContainerKind, typeNames ...string) *TypeDescriptor {
	return &TypeDescriptor{
		TypeNames:    typeNames,
		Container:    kind,
		FromRemoting: unwrapContainer,
	}
}

// Enum types used by the PSRP records.
var (
	ApartmentState = RegisterEnum(&EnumType{
		Name: "System.Threading.ApartmentState",
		Values: []EnumValue{
			{"STA", 0},
			{"MTA", 1},
			{"Unknown", 2},
		},
	})

	RemoteStreamOptions = RegisterEnum(&EnumType{
		Name:  "System.Management.Automation.RemoteStreamOptions",
		Flags: true,
		Values: []EnumValue{
			{"None", 0},
			{"AddInvocationInfoToErrorRecord", 1},
			{"AddInvocationInfoToWarningRecord", 2},
			{"AddInvocationInfoToDebugRecord", 4},
			{"AddInvocationInfoToVerboseRecord", 8},
			{"AddInvocationInfo", 15},
		},
	})

	PipelineResultTypes = RegisterEnum(&EnumType{
		Name:  "System.Management.Automation.Runspaces.PipelineResultTypes",
		Flags: true,
		Values: []EnumValue{
			{"None", 0},
			{"Output", 1},
			{"Error", 2},
			{"Warning", 3},
			{"Verbose", 4},
			{"Debug", 5},
			{"Information", 6},
			{"All", 7},
			{"Null", 8},
		},
	})

	ProgressRecordTypes = RegisterEnum(&EnumType{
		Name: "System.Management.Automation.ProgressRecordType",
		Values: []EnumValue{
			{"Processing", int64(ProgressRecordTypeProcessing)},
			{"Completed", int64(ProgressRecordTypeCompleted)},
		},
	})

	ErrorCategories = RegisterEnum(&EnumType{
		Name:   "System.Management.Automation.ErrorCategory",
		Values: errorCategoryValues(),
	})
)

// ErrorCategory represents PowerShell error categories.
type ErrorCategory int32

const (
	ErrorCategoryNotSpecified ErrorCategory = iota
	ErrorCategoryOpenError
	ErrorCategoryCloseError
	ErrorCategoryDeviceError
	ErrorCategoryDeadlockDetected
	ErrorCategoryInvalidArgument
	ErrorCategoryInvalidData
	ErrorCategoryInvalidOperation
	ErrorCategoryInvalidResult
	ErrorCategoryInvalidType
	ErrorCategoryMetadataError
	ErrorCategoryNotImplemented
	ErrorCategoryNotInstalled
	ErrorCategoryObjectNotFound
	ErrorCategoryOperationStopped
	ErrorCategoryOperationTimeout
	ErrorCategorySyntaxError
	ErrorCategoryParserError
	ErrorCategoryPermissionDenied
	ErrorCategoryResourceBusy
	ErrorCategoryResourceExists
	ErrorCategoryResourceUnavailable
	ErrorCategoryReadError
	ErrorCategoryWriteError
	ErrorCategoryFromStdErr
	ErrorCategorySecurityError
	ErrorCategoryProtocolError
	ErrorCategoryConnectionError
	ErrorCategoryAuthenticationError
	ErrorCategoryLimitsExceeded
	ErrorCategoryQuotaExceeded
	ErrorCategoryNotEnabled
)

var errorCategoryNames = []string{
	"NotSpecified", "OpenError", "CloseError", "DeviceError", "DeadlockDetected",
	"InvalidArgument", "InvalidData", "InvalidOperation", "InvalidResult", "InvalidType",
	"MetadataError", "NotImplemented", "NotInstalled", "ObjectNotFound", "OperationStopped",
	"OperationTimeout", "SyntaxError", "ParserError", "PermissionDenied", "ResourceBusy",
	"ResourceExists", "ResourceUnavailable", "ReadError", "WriteError", "FromStdErr",
	"SecurityError", "ProtocolError", "ConnectionError", "AuthenticationError",
	"LimitsExceeded", "QuotaExceeded", "NotEnabled",
}

func errorCategoryValues() []EnumValue {
	values := make([]EnumValue, len(errorCategoryNames))
	for i, name := range errorCategoryNames {
		values[i] = EnumValue{Name: name, Value: int64(i)}
	}
	return values
}

// String returns the category label.
func (c ErrorCategory) String() string {
	return ErrorCategories.Of(int64(c)).String()
}

// ErrorCategoryInfoType describes System.Management.Automation.ErrorCategoryInfo.
var ErrorCategoryInfoType = Register(&TypeDescriptor{
	TypeNames: []string{"System.Management.Automation.ErrorCategoryInfo", "System.Object"},
	Adapted: []*Property{
		NewNoteProperty("Category", ErrorCategories.Of(0), Mandatory(), WithCoercion(CoerceEnum(ErrorCategories))),
		NewNoteProperty("Activity", nil, Optional(), WithCoercion(CoerceString)),
		NewNoteProperty("Reason", nil, Optional(), WithCoercion(CoerceString)),
		NewNoteProperty("TargetName", nil, Optional(), WithCoercion(CoerceString)),
		NewNoteProperty("TargetType", nil, Optional(), WithCoercion(CoerceString)),
	},
	ToString: func(o *PSObject) string {
		str := func(name string) string {
			if v, ok := o.Value(name).(string); ok {
				return v
			}
			return ""
		}
		category := fmt.Sprint(o.Value("Category"))
		return fmt.Sprintf("%s: (%s:%s) [%s], %s",
			category, str("TargetName"), str("TargetType"), str("Activity"), str("Reason"))
	},
})

// ProgressRecordType indicates the type of progress record.
type ProgressRecordType int32

const (
	ProgressRecordTypeProcessing ProgressRecordType = iota
	ProgressRecordTypeCompleted
)

// ProgressRecordObjectType describes System.Management.Automation.ProgressRecord.
var ProgressRecordObjectType = Register(&TypeDescriptor{
	TypeNames: []string{"System.Management.Automation.ProgressRecord", "System.Object"},
	Adapted: []*Property{
		NewNoteProperty("ActivityId", nil, Mandatory(), WithCoercion(CoerceInt32)),
		NewNoteProperty("ParentActivityId", int32(-1), WithCoercion(CoerceInt32)),
		NewNoteProperty("Activity", nil, Mandatory(), WithCoercion(CoerceString)),
		NewNoteProperty("StatusDescription", nil, Mandatory(), WithCoercion(CoerceString)),
		NewNoteProperty("CurrentOperation", nil, Optional(), WithCoercion(CoerceString)),
		NewNoteProperty("PercentComplete", int32(-1), WithCoercion(CoerceInt32)),
		NewNoteProperty("SecondsRemaining", int32(-1), WithCoercion(CoerceInt32)),
		NewNoteProperty("RecordType", ProgressRecordTypes.Of(0), WithCoercion(CoerceEnum(ProgressRecordTypes))),
	},
	FromRemoting: func(o *PSObject) (interface{}, error) {
		return ProgressRecordFromPSObject(o)
	},
})

// ProgressRecord represents a PowerShell progress update.
type ProgressRecord struct {
	ActivityId        int32
	ParentActivityId  int32
	Activity          string
	StatusDescription string
	CurrentOperation  string
	PercentComplete   int32
	SecondsRemaining  int32
	RecordType        ProgressRecordType
}

// ToPSObject builds the wire object of the record.
func (r *ProgressRecord) ToPSObject() (*PSObject, error) {
	values := map[string]interface{}{
		"ActivityId":        r.ActivityId,
		"ParentActivityId":  r.ParentActivityId,
		"Activity":          r.Activity,
		"StatusDescription": r.StatusDescription,
		"PercentComplete":   r.PercentComplete,
		"SecondsRemaining":  r.SecondsRemaining,
		"RecordType":        int64(r.RecordType),
	}
	if r.CurrentOperation != "" {
		values["CurrentOperation"] = r.CurrentOperation
	}
	return ProgressRecordObjectType.New(values)
}

// ProgressRecordFromPSObject reads a progress record back from its wire
// object. Missing or mistyped properties keep their zero value.
func ProgressRecordFromPSObject(o *PSObject) (*ProgressRecord, error) {
	r := &ProgressRecord{}
	var err error
	getInt := func(name string) int32 {
		v := o.Value(name)
		if v == nil || err != nil {
			return 0
		}
		var n interface{}
		n, err = CoerceInt32(v)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			return 0
		}
		return n.(int32)
	}
	getString := func(name string) string {
		s, _ := o.Value(name).(string)
		return s
	}
	r.ActivityId = getInt("ActivityId")
	r.ParentActivityId = getInt("ParentActivityId")
	r.PercentComplete = getInt("PercentComplete")
	r.SecondsRemaining = getInt("SecondsRemaining")
	r.RecordType = ProgressRecordType(getInt("RecordType"))
	r.Activity = getString("Activity")
	r.StatusDescription = getString("StatusDescription")
	r.CurrentOperation = getString("CurrentOperation")
	if err != nil {
		return nil, fmt.Errorf("progress record: %w", err)
	}
	return r, nil
}

// PSCredentialType describes System.Management.Automation.PSCredential.
var PSCredentialType = Register(&TypeDescriptor{
	TypeNames: []string{"System.Management.Automation.PSCredential", "System.Object"},
	Adapted: []*Property{
		NewNoteProperty("UserName", nil, Mandatory(), WithCoercion(CoerceString)),
		NewNoteProperty("Password", nil, Mandatory()),
	},
	FromRemoting: func(o *PSObject) (interface{}, error) {
		user, _ := o.Value("UserName").(string)
		pass, _ := o.Value("Password").(*SecureString)
		return NewPSCredential(user, pass), nil
	},
})

// PSCredential represents a PowerShell PSCredential object.
type PSCredential struct {
	UserName string
	Password *SecureString
}

// NewPSCredential creates a new PSCredential.
func NewPSCredential(userName string, password *SecureString) *PSCredential {
	return &PSCredential{
		UserName: userName,
		Password: password,
	}
}

// ToPSObject builds the wire object of the credential.
func (c *PSCredential) ToPSObject() (*PSObject, error) {
	return PSCredentialType.New(map[string]interface{}{
		"UserName": c.UserName,
		"Password": c.Password,
	})
}

// Clear securely clears the credential from memory.
func (c *PSCredential) Clear() {
	if c.Password != nil {
		c.Password.Clear()
	}
}

func init() {
	Register(containerDescriptor(ContainerList, ArrayTypeNames...))
	Register(containerDescriptor(ContainerList, "System.Collections.ArrayList", "System.Object"))
	Register(containerDescriptor(ContainerDictionary, HashtableTypeNames...))
	Register(containerDescriptor(ContainerDictionary, "System.Collections.Specialized.OrderedDictionary", "System.Object"))
	Register(containerDescriptor(ContainerStack, StackTypeNames...))
	Register(containerDescriptor(ContainerQueue, QueueTypeNames...))
	Register(ListType.Template)
	Register(DictionaryType.Template)
}

// ContainerOf reports the container kind of a native Go container value.
// Byte slices are primitives and report ContainerNone.
func ContainerOf(v interface{}) ContainerKind {
	switch v.(type) {
	case nil, []byte:
		return ContainerNone
	case *Dictionary:
		return ContainerDictionary
	case *Stack:
		return ContainerStack
	case *Queue:
		return ContainerQueue
	case []interface{}:
		return ContainerList
	}
	if k := reflect.TypeOf(v).Kind(); k == reflect.Slice || k == reflect.Array {
		return ContainerList
	}
	return ContainerNone
}

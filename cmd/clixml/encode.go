package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/objects"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// secureKey marks a JSON object {"$secure": "text"} that encodes as a
// SecureString.
const secureKey = "$secure"

func runEncode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var common commonFlags
	var raw, each bool

	fs := pflag.NewFlagSet("clixml encode", pflag.ContinueOnError)
	common.register(fs)
	fs.BoolVar(&raw, "raw", false, "omit the <Objs> root element")
	fs.BoolVar(&each, "each", false, "encode the elements of a top-level array as separate objects")

	path, help, err := parseFlags(fs, args, stdout)
	if err != nil || help {
		return err
	}
	data, err := readInput(path, stdin)
	if err != nil {
		return err
	}
	v, err := parseJSONC(data)
	if err != nil {
		return err
	}
	opts, err := common.options(stderr)
	if err != nil {
		return err
	}

	var out []byte
	t, isMessage, err := common.messageType()
	if err != nil {
		return err
	}
	switch {
	case isMessage:
		values, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("message %s needs a JSON object, got %T", t, v)
		}
		out, err = messages.Marshal(t, values, opts...)

	case each:
		items, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("--each needs a JSON array, got %T", v)
		}
		ser := serialization.NewSerializer(opts...)
		defer ser.Close()
		out, err = ser.SerializeMultipleRaw(items...)
		if err == nil && !raw {
			out = wrapDocument(out)
		}

	default:
		ser := serialization.NewSerializer(opts...)
		defer ser.Close()
		if raw {
			out, err = ser.SerializeRaw(v)
		} else {
			out, err = ser.Serialize(v)
		}
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", out)
	return err
}

// wrapDocument places raw objects under the <Objs> root.
func wrapDocument(raw []byte) []byte {
	head := fmt.Sprintf(`<Objs Version="%s" xmlns="%s">`, serialization.CLIXMLVersion, serialization.CLIXMLNamespace)
	out := make([]byte, 0, len(head)+len(raw)+len("</Objs>"))
	out = append(out, head...)
	out = append(out, raw...)
	return append(out, "</Objs>"...)
}

// parseJSONC reads JSON with comments and trailing commas. Whole numbers
// become int64 and the rest float64.
func parseJSONC(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return convertJSON(v)
}

func convertJSON(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("parse number %s: %w", val, err)
		}
		return f, nil
	case []interface{}:
		for i, item := range val {
			c, err := convertJSON(item)
			if err != nil {
				return nil, err
			}
			val[i] = c
		}
		return val, nil
	case map[string]interface{}:
		if text, ok := val[secureKey].(string); ok && len(val) == 1 {
			return objects.NewSecureString(text)
		}
		for k, item := range val {
			c, err := convertJSON(item)
			if err != nil {
				return nil, err
			}
			val[k] = c
		}
		return val, nil
	}
	return v, nil
}

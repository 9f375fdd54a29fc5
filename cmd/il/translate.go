package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/translator"
)

var (
	translateLang   string
	translateOutput string
)

var translateCmd = &cobra.Command{
	Use:   "translate <assembly>",
	Short: "Translate a linked assembly to IL text or C source",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

func init() {
	translateCmd.Flags().StringVar(&translateLang, "lang", "il", "output language: il or c")
	translateCmd.Flags().StringVarP(&translateOutput, "output", "o", "", "output path (default stdout)")
	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	as, err := ilmodel.DeserializeAssembly(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	var out string
	switch translateLang {
	case "il":
		out = translator.New(as).Emit()
	case "c":
		out = emitC(as)
	default:
		return fmt.Errorf("unknown --lang %q: expected il or c", translateLang)
	}

	if translateOutput == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	}
	return os.WriteFile(translateOutput, []byte(out), 0o644)
}

// emitC renders the assembly's method symbols and constant pool through
// the C mangling/constant contract; full statement-by-statement C
// pretty-printing is out of scope, so this surfaces what that contract
// actually covers — declarations and initializers a real backend would
// splice the method bodies around.
func emitC(as *ilmodel.Assembly) string {
	var out string
	out += "#include <stdint.h>\n\n"
	for i := range as.Methods {
		mt := as.Methods[i]
		if !mt.Name.Valid() {
			continue
		}
		sig := as.Signatures[mt.Signature]
		params := make([]string, len(sig.Params))
		for j, p := range sig.Params {
			params[j] = translator.CTypeName(as, p.Type)
		}
		out += fmt.Sprintf("%s %s(%s);\n", translator.CTypeName(as, sig.Return),
			translator.CMangle(as, ilmodel.MethodIndex(i)), joinParams(params))
	}
	out += "\n"
	for _, e := range as.Constants.Entries {
		raw := as.Constants.Bytes[e.Offset : e.Offset+entrySize(as, e)]
		out += fmt.Sprintf("static const %s %s = %s;\n", translator.CTypeName(as, e.Type),
			as.Names[e.Name], translator.CConstant(as, e, raw))
	}
	return out
}

func joinParams(params []string) string {
	if len(params) == 0 {
		return "void"
	}
	out := params[0]
	for _, p := range params[1:] {
		out += ", " + p
	}
	return out
}

func entrySize(as *ilmodel.Assembly, e ilmodel.DataEntry) int64 {
	if ilmodel.IsBase(e.Type) {
		return ilmodel.BaseTypeSizes(as.WordSize)[e.Type]
	}
	return as.Types[e.Type].Size
}

// Package loader implements the loader described in spec.md §4.7: it
// lays the compiled program's data segment then code segment into a
// single flat word array, appends a one-instruction halt trampoline,
// copies the process arguments near the high end of that array, and
// seeds the initial stack so the user's main sees (argc, argv) as its
// two arguments followed by a "return address" that halts the VM when
// main returns (spec.md §4.7).
package loader

import (
	"fmt"

	"github.com/icpp-lang/icpp/internal/compiler"
	"github.com/icpp-lang/icpp/internal/opcode"
	"github.com/icpp-lang/icpp/internal/vm"
)

// DefaultMemWords is the size of the VM's flat memory array (spec.md
// §5: "conceptually 1 Mi words"). The loader refuses to load a program
// whose data, code, and argument footprint does not fit.
const DefaultMemWords = 1 << 20

// Result bundles the machine ready to run with the addresses the
// disassembler and CLI need to report.
type Result struct {
	Machine   *vm.Machine
	CodeStart int // flat-memory offset of the first code-segment word
	CodeEnd   int // flat-memory offset one past the halt trampoline
	EntryIP   int // flat-memory offset of main's ENTER instruction
	HaltAddr  int // flat-memory offset of the halt trampoline
}

// Load lays prog into a fresh flat memory array and seeds argc/argv per
// spec.md §4.7. args are the user program's positional arguments (argv
// excluding argv[0], which this loader synthesizes as the source
// filename).
func Load(prog *compiler.Program, sourceFile string, args []string, memWords int) (*Result, error) {
	if memWords <= 0 {
		memWords = DefaultMemWords
	}

	dataLen := prog.Data.Len()
	codeLen := len(prog.Emit.Code)
	haltAddr := dataLen + codeLen
	codeEnd := haltAddr + 1

	if codeEnd >= memWords {
		return nil, fmt.Errorf("program (data+code = %d words) exceeds the %d-word memory", codeEnd, memWords)
	}

	mem := make([]int, memWords)
	copy(mem[0:dataLen], prog.Data.Words)
	copy(mem[dataLen:dataLen+codeLen], prog.Emit.Code)
	mem[haltAddr] = int(opcode.EXIT)

	argv := append([]string{sourceFile}, args...)

	top := memWords
	strAddrs := make([]int, len(argv))
	for i, a := range argv {
		words := packedStringWords(a)
		top -= words
		if top <= codeEnd {
			return nil, fmt.Errorf("argument strings overflow the %d-word memory", memWords)
		}
		packString(mem, top, a)
		strAddrs[i] = top
	}

	ptrVecWords := len(argv) + 1
	top -= ptrVecWords
	if top <= codeEnd {
		return nil, fmt.Errorf("argument vector overflows the %d-word memory", memWords)
	}
	ptrVecStart := top
	for i, addr := range strAddrs {
		mem[ptrVecStart+i] = addr
	}
	mem[ptrVecStart+len(argv)] = 0

	sp := ptrVecStart
	sp--
	mem[sp] = len(argv) // argc, pushed first (spec.md §4.7's ordering)
	sp--
	mem[sp] = ptrVecStart // argv
	sp--
	mem[sp] = haltAddr // the "return address" that halts the VM
	if sp <= codeEnd {
		return nil, fmt.Errorf("no room for the initial stack frame in the %d-word memory", memWords)
	}

	entryIP := dataLen + prog.Main.Offset

	m := vm.New(mem, codeEnd, entryIP, sp)
	prog.Builtins.Install(m, dataLen)

	return &Result{
		Machine:   m,
		CodeStart: dataLen,
		CodeEnd:   codeEnd,
		EntryIP:   entryIP,
		HaltAddr:  haltAddr,
	}, nil
}

// packedStringWords returns the word count AllocString-style packing
// (four bytes per word, NUL-terminated) would need for s.
func packedStringWords(s string) int {
	return (len(s) + 1 + 3) / 4
}

// packString writes s, NUL-terminated, four bytes per word in
// little-endian order starting at word offset off — the same packing
// internal/dataseg.Segment.AllocString uses for string literals
// (spec.md §3, §9's endianness note), so the VM's byte-addressed string
// reads treat argv strings identically to literals.
func packString(mem []int, off int, s string) {
	bytes := append([]byte(s), 0)
	for i, b := range bytes {
		word := off + i/4
		shift := uint(i%4) * 8
		mem[word] |= int(b) << shift
	}
}

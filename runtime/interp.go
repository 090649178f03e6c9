package runtime

import "fmt"

// ---------------------------------------------------------------------------
// Interpreter: stack-based bytecode execution
// ---------------------------------------------------------------------------

// defaultMaxSteps bounds a single call to catch runaway loops in tests
// and worker jobs.
const defaultMaxSteps = 1 << 22

// maxCallDepth bounds interpreted call recursion.
const maxCallDepth = 512

// Call invokes a callable value with the given arguments. Functions,
// native functions, bound methods, and classes (construct + optional
// "init") are callable.
func (rt *Runtime) Call(callee Value, args ...Value) (Value, error) {
	return rt.call(callee, args, 0)
}

func (rt *Runtime) call(callee Value, args []Value, depth int) (Value, error) {
	if depth > maxCallDepth {
		return nil, fmt.Errorf("runtime: call depth exceeded")
	}
	switch t := callee.(type) {
	case *Function:
		return rt.run(t, args, depth)
	case *NativeFunction:
		return t.Fn(rt, args)
	case *BoundMethod:
		withSelf := make([]Value, 0, len(args)+1)
		withSelf = append(withSelf, t.Recv)
		withSelf = append(withSelf, args...)
		return rt.call(t.Fn, withSelf, depth+1)
	case *Class:
		inst := t.NewInstance()
		if init := t.LookupMethod("init"); init != nil {
			withSelf := make([]Value, 0, len(args)+1)
			withSelf = append(withSelf, inst)
			withSelf = append(withSelf, args...)
			if _, err := rt.call(init, withSelf, depth+1); err != nil {
				return nil, err
			}
		}
		return inst, nil
	default:
		return nil, fmt.Errorf("runtime: %s is not callable", callee.Kind())
	}
}

// run executes one interpreted function activation.
func (rt *Runtime) run(fn *Function, args []Value, depth int) (Value, error) {
	u := fn.Code
	if len(args) != u.Arity {
		return nil, fmt.Errorf("runtime: %s expects %d arguments, got %d", fn.FullName(), u.Arity, len(args))
	}

	locals := make([]Value, u.NumLocals)
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = Nil
	}

	stack := make([]Value, 0, 16)
	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	maxSteps := rt.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	r := NewCodeReader(u.Code)
	for steps := 0; r.HasMore(); steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("runtime: %s exceeded %d steps", fn.FullName(), maxSteps)
		}

		switch op := r.ReadOpcode(); op {
		case OpNop:
		case OpPop:
			pop()
		case OpDup:
			push(stack[len(stack)-1])

		case OpPushNil:
			push(Nil)
		case OpPushTrue:
			push(True)
		case OpPushFalse:
			push(False)
		case OpPushLiteral:
			push(u.LiteralAt(int(r.ReadUint16())))

		case OpLoadLocal:
			push(locals[r.ReadByte()])
		case OpStoreLocal:
			locals[r.ReadByte()] = pop()

		case OpLoadCell:
			idx := int(r.ReadByte())
			if idx >= len(fn.Cells) {
				return nil, fmt.Errorf("runtime: %s has no cell %d", fn.FullName(), idx)
			}
			v, ok := fn.Cells[idx].Get()
			if !ok {
				return nil, fmt.Errorf("runtime: %s read empty cell %q", fn.FullName(), u.CellVars[idx])
			}
			push(v)
		case OpStoreCell:
			idx := int(r.ReadByte())
			if idx >= len(fn.Cells) {
				return nil, fmt.Errorf("runtime: %s has no cell %d", fn.FullName(), idx)
			}
			fn.Cells[idx].Set(pop())

		case OpLoadGlobal:
			name := u.NameAt(int(r.ReadUint16()))
			v, ok := fn.Globals.Get(name)
			if !ok {
				return nil, fmt.Errorf("runtime: %s: undefined global %q", fn.FullName(), name)
			}
			push(v)
		case OpStoreGlobal:
			name := u.NameAt(int(r.ReadUint16()))
			fn.Globals.Set(name, pop())
		case OpDeleteGlobal:
			name := u.NameAt(int(r.ReadUint16()))
			fn.Globals.Delete(name)

		case OpLoadAttr:
			name := u.NameAt(int(r.ReadUint16()))
			v, err := Attr(pop(), name)
			if err != nil {
				return nil, err
			}
			push(v)
		case OpStoreAttr:
			name := u.NameAt(int(r.ReadUint16()))
			recv := pop()
			v := pop()
			if err := SetAttr(recv, name, v); err != nil {
				return nil, err
			}

		case OpAdd, OpSub, OpMul, OpLT, OpEQ:
			b := pop()
			a := pop()
			v, err := arith(op, a, b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn.FullName(), err)
			}
			push(v)

		case OpJump:
			offset := int(r.ReadInt16())
			r.Seek(r.Position() + offset)
		case OpJumpFalse:
			offset := int(r.ReadInt16())
			if !IsTruthy(pop()) {
				r.Seek(r.Position() + offset)
			}

		case OpCall:
			argc := int(r.ReadByte())
			callArgs := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			callee := pop()
			v, err := rt.call(callee, callArgs, depth+1)
			if err != nil {
				return nil, err
			}
			push(v)

		case OpCallMethod:
			name := u.NameAt(int(r.ReadUint16()))
			argc := int(r.ReadByte())
			callArgs := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			recv := pop()
			method, err := Attr(recv, name)
			if err != nil {
				return nil, err
			}
			v, err := rt.call(method, callArgs, depth+1)
			if err != nil {
				return nil, err
			}
			push(v)

		case OpNew:
			cls, ok := pop().(*Class)
			if !ok {
				return nil, fmt.Errorf("runtime: %s: NEW applied to non-class", fn.FullName())
			}
			push(cls.NewInstance())

		case OpMakeClosure:
			unitIdx := int(r.ReadUint16())
			nCells := int(r.ReadByte())
			cells := make([]*Cell, nCells)
			for i := nCells - 1; i >= 0; i-- {
				c, ok := pop().(*Cell)
				if !ok {
					return nil, fmt.Errorf("runtime: %s: MAKE_CLOSURE capture is not a cell", fn.FullName())
				}
				cells[i] = c
			}
			nested := u.UnitAt(unitIdx)
			if nCells != len(nested.CellVars) {
				return nil, fmt.Errorf("runtime: %s: closure %s needs %d cells, got %d",
					fn.FullName(), nested.Name, len(nested.CellVars), nCells)
			}
			closure := &Function{
				Name:     nested.Name,
				Module:   fn.Module,
				Qualname: fn.Qualname + "." + nested.Name,
				Code:     nested,
				Globals:  fn.Globals,
				Cells:    cells,
				Attrs:    NewDict(),
			}
			push(closure)

		case OpPushNewCell:
			push(NewEmptyCell())
		case OpCellSet:
			c, ok := pop().(*Cell)
			if !ok {
				return nil, fmt.Errorf("runtime: %s: CELL_SET target is not a cell", fn.FullName())
			}
			c.Set(pop())
		case OpCellGet:
			c, ok := pop().(*Cell)
			if !ok {
				return nil, fmt.Errorf("runtime: %s: CELL_GET target is not a cell", fn.FullName())
			}
			v, okFilled := c.Get()
			if !okFilled {
				return nil, fmt.Errorf("runtime: %s: CELL_GET on empty cell", fn.FullName())
			}
			push(v)

		case OpReturn:
			return pop(), nil
		case OpReturnNil:
			return Nil, nil

		default:
			return nil, fmt.Errorf("runtime: %s: unknown opcode %s at %d", fn.FullName(), op, r.Position()-1)
		}
	}
	return Nil, nil
}

// arith implements the binary operator opcodes over ints and floats.
func arith(op Opcode, a, b Value) (Value, error) {
	ai, aIsInt := a.(IntValue)
	bi, bIsInt := b.(IntValue)
	if aIsInt && bIsInt {
		switch op {
		case OpAdd:
			return ai + bi, nil
		case OpSub:
			return ai - bi, nil
		case OpMul:
			return ai * bi, nil
		case OpLT:
			return BoolValue(ai < bi), nil
		case OpEQ:
			return BoolValue(ai == bi), nil
		}
	}

	af, aOK := toFloat(a)
	bf, bOK := toFloat(b)
	if aOK && bOK {
		switch op {
		case OpAdd:
			return FloatValue(af + bf), nil
		case OpSub:
			return FloatValue(af - bf), nil
		case OpMul:
			return FloatValue(af * bf), nil
		case OpLT:
			return BoolValue(af < bf), nil
		case OpEQ:
			return BoolValue(af == bf), nil
		}
	}

	if op == OpAdd {
		if as, ok := a.(StringValue); ok {
			if bs, ok := b.(StringValue); ok {
				return as + bs, nil
			}
		}
	}
	if op == OpEQ {
		// Slice-backed kinds are not comparable with ==.
		if _, ok := a.(BytesValue); ok {
			if bb, ok := b.(BytesValue); ok {
				return BoolValue(string(a.(BytesValue)) == string(bb)), nil
			}
			return False, nil
		}
		return BoolValue(a == b), nil
	}
	return nil, fmt.Errorf("runtime: %s not defined for %s and %s", op, a.Kind(), b.Kind())
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case IntValue:
		return float64(t), true
	case FloatValue:
		return float64(t), true
	}
	return 0, false
}

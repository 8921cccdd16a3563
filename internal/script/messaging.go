package script

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// GlobalName is the object scripts call the bridge through.
const GlobalName = "MobileMessaging"

func (r *Runtime) installMessaging() {
	mm := r.vm.NewObject()
	_ = mm.Set("init", r.jsInit)
	_ = mm.Set("register", r.jsRegister)
	_ = mm.Set("unregister", r.jsUnregister)
	_ = mm.Set("syncUserData", r.jsSyncUserData)
	_ = mm.Set("fetchUserData", r.jsFetchUserData)
	_ = mm.Set("markMessagesSeen", r.jsMarkMessagesSeen)
	_ = mm.Set("defaultMessageStorage", r.jsDefaultMessageStorage)
	_ = r.vm.Set(GlobalName, mm)
}

// init(config, errorCallback)
func (r *Runtime) jsInit(call goja.FunctionCall) goja.Value {
	onError := call.Argument(1)
	fail := func(err error) { r.callback(onError, errorArg(err)) }

	arg := call.Argument(0)
	if isAbsent(arg) {
		fail(fmt.Errorf("%w: init expects a configuration", bridge.ErrInvalidArguments))
		return goja.Undefined()
	}
	fields, ok := arg.Export().(map[string]any)
	if !ok {
		fail(fmt.Errorf("%w: configuration must be an object", bridge.ErrInvalidArguments))
		return goja.Undefined()
	}
	delete(fields, "messageStorage")

	cfg, err := bridge.DecodeConfiguration(fields)
	if err != nil {
		fail(err)
		return goja.Undefined()
	}
	if storage := r.storageFrom(arg.ToObject(r.vm).Get("messageStorage")); storage != nil {
		cfg.MessageStorage = storage
	}

	r.messaging.Init(r.ctx, cfg, nil, fail)
	return goja.Undefined()
}

// register(eventName, callback) returns whether the listener was added.
func (r *Runtime) jsRegister(call goja.FunctionCall) goja.Value {
	event := bridge.Event(call.Argument(0).String())
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); !ok {
		r.logger.Warn("register called without a callback", "event", event)
		return r.vm.ToValue(false)
	}

	id, err := r.messaging.Register(r.ctx, event, func(payload any) {
		r.callback(fn, jsValue(payload))
	})
	if err != nil {
		r.logger.Error("register failed", "event", event, "err", err)
		return r.vm.ToValue(false)
	}
	r.subs[event] = append(r.subs[event], subscription{fn: fn, id: id})
	return r.vm.ToValue(true)
}

// unregister(eventName, callback) removes callback from eventName. Without a
// callback every listener of eventName is removed. Unknown callbacks are a
// no-op.
func (r *Runtime) jsUnregister(call goja.FunctionCall) goja.Value {
	event := bridge.Event(call.Argument(0).String())
	fn := call.Argument(1)

	subs := r.subs[event]
	kept := subs[:0]
	removed := false
	for _, s := range subs {
		if isAbsent(fn) || (!removed && s.fn.StrictEquals(fn)) {
			r.messaging.Unregister(r.ctx, event, s.id)
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		delete(r.subs, event)
	} else {
		r.subs[event] = kept
	}
	return r.vm.ToValue(removed)
}

// syncUserData(userData, callback, errorCallback)
func (r *Runtime) jsSyncUserData(call goja.FunctionCall) goja.Value {
	onSuccess, onError := call.Argument(1), call.Argument(2)
	data, err := bridge.DecodeUserData(exported(call.Argument(0)))
	if err != nil {
		r.callback(onError, errorArg(fmt.Errorf("%w: %w", bridge.ErrInvalidArguments, err)))
		return goja.Undefined()
	}
	r.messaging.SyncUserData(r.ctx, data,
		func(merged bridge.UserData) { r.callback(onSuccess, jsValue(merged)) },
		func(err error) { r.callback(onError, errorArg(err)) },
	)
	return goja.Undefined()
}

// fetchUserData(callback, errorCallback)
func (r *Runtime) jsFetchUserData(call goja.FunctionCall) goja.Value {
	onSuccess, onError := call.Argument(0), call.Argument(1)
	r.messaging.FetchUserData(r.ctx,
		func(data bridge.UserData) { r.callback(onSuccess, jsValue(data)) },
		func(err error) { r.callback(onError, errorArg(err)) },
	)
	return goja.Undefined()
}

// markMessagesSeen(messageIds, callback, errorCallback)
func (r *Runtime) jsMarkMessagesSeen(call goja.FunctionCall) goja.Value {
	onSuccess, onError := call.Argument(1), call.Argument(2)
	raw, ok := exported(call.Argument(0)).([]any)
	if !ok {
		r.callback(onError, errorArg(fmt.Errorf("%w: messageIds must be an array", bridge.ErrInvalidArguments)))
		return goja.Undefined()
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, fmt.Sprint(v))
	}
	r.messaging.MarkMessagesSeen(r.ctx, ids,
		func(seen []string) { r.callback(onSuccess, jsValue(seen)) },
		func(err error) { r.callback(onError, errorArg(err)) },
	)
	return goja.Undefined()
}

// defaultMessageStorage() returns undefined unless init enabled it.
func (r *Runtime) jsDefaultMessageStorage(goja.FunctionCall) goja.Value {
	storage, ok := r.messaging.DefaultMessageStorage()
	if !ok {
		return goja.Undefined()
	}

	obj := r.vm.NewObject()
	logFailure := func(op string, err error) {
		r.logger.Warn("Default message storage call failed", "op", op, "err", err)
	}
	_ = obj.Set("find", func(call goja.FunctionCall) goja.Value {
		fn := call.Argument(1)
		storage.Find(r.ctx, call.Argument(0).String(), func(msg *bridge.Message, err error) {
			if err != nil {
				logFailure("find", err)
				return
			}
			if msg == nil {
				r.callback(fn, jsValue(nil))
				return
			}
			r.callback(fn, jsValue(*msg))
		})
		return goja.Undefined()
	})
	_ = obj.Set("findAll", func(call goja.FunctionCall) goja.Value {
		fn := call.Argument(0)
		storage.FindAll(r.ctx, func(msgs []bridge.Message, err error) {
			if err != nil {
				logFailure("findAll", err)
				return
			}
			if msgs == nil {
				msgs = []bridge.Message{}
			}
			r.callback(fn, jsValue(msgs))
		})
		return goja.Undefined()
	})
	_ = obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		fn := call.Argument(1)
		storage.Delete(r.ctx, call.Argument(0).String(), func(err error) {
			if err != nil {
				logFailure("delete", err)
				return
			}
			r.callback(fn)
		})
		return goja.Undefined()
	})
	_ = obj.Set("deleteAll", func(call goja.FunctionCall) goja.Value {
		fn := call.Argument(0)
		storage.DeleteAll(r.ctx, func(err error) {
			if err != nil {
				logFailure("deleteAll", err)
				return
			}
			r.callback(fn)
		})
		return goja.Undefined()
	})
	return obj
}

// storageFrom turns a script object into a storage capability. Operations the
// object does not define stay nil so init can name the first one missing.
func (r *Runtime) storageFrom(v goja.Value) bridge.MessageStorage {
	if isAbsent(v) {
		return nil
	}
	obj := v.ToObject(r.vm)
	method := func(name string) goja.Value {
		fn := obj.Get(name)
		if _, ok := goja.AssertFunction(fn); !ok {
			return nil
		}
		return fn
	}

	var funcs bridge.StorageFuncs
	if start := method("start"); start != nil {
		funcs.StartFunc = func(ctx context.Context) error { return r.await(ctx, start) }
	}
	if stop := method("stop"); stop != nil {
		funcs.StopFunc = func(ctx context.Context) error { return r.await(ctx, stop) }
	}
	if save := method("save"); save != nil {
		funcs.SaveFunc = func(ctx context.Context, msgs []bridge.Message) error {
			return r.await(ctx, save, jsValue(msgs))
		}
	}
	if find := method("find"); find != nil {
		funcs.FindFunc = func(ctx context.Context, id string, reply func(*bridge.Message)) {
			answer := func(vm *goja.Runtime) goja.Value {
				return vm.ToValue(func(call goja.FunctionCall) goja.Value {
					msg, err := bridge.DecodeMessage(exported(call.Argument(0)))
					if err != nil {
						r.logger.Warn("Script storage returned a malformed message", "message_id", id, "err", err)
						msg = nil
					}
					reply(msg)
					return goja.Undefined()
				})
			}
			if err := r.await(ctx, find, jsValue(id), answer); err != nil {
				r.logger.Error("Script storage find threw", "message_id", id, "err", err)
				reply(nil)
			}
		}
	}
	if findAll := method("findAll"); findAll != nil {
		funcs.FindAllFunc = func(ctx context.Context, reply func([]bridge.Message)) {
			answer := func(vm *goja.Runtime) goja.Value {
				return vm.ToValue(func(call goja.FunctionCall) goja.Value {
					msgs, err := bridge.DecodeMessages(exported(call.Argument(0)))
					if err != nil {
						r.logger.Warn("Script storage returned a malformed message list", "err", err)
						msgs = nil
					}
					reply(msgs)
					return goja.Undefined()
				})
			}
			if err := r.await(ctx, findAll, answer); err != nil {
				r.logger.Error("Script storage findAll threw", "err", err)
				reply(nil)
			}
		}
	}
	return funcs
}

// jsValue converts a Go payload into plain script data through its JSON form,
// so scripts see the same field names as the native layer.
func jsValue(v any) func(vm *goja.Runtime) goja.Value {
	return func(vm *goja.Runtime) goja.Value {
		if v == nil {
			return goja.Null()
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return vm.ToValue(fmt.Sprint(v))
		}
		var plain any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return vm.ToValue(fmt.Sprint(v))
		}
		return vm.ToValue(plain)
	}
}

func errorArg(err error) func(vm *goja.Runtime) goja.Value {
	return func(vm *goja.Runtime) goja.Value { return vm.ToValue(err.Error()) }
}

func exported(v goja.Value) any {
	if isAbsent(v) {
		return nil
	}
	return v.Export()
}

func isAbsent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
